package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"campus_hub/hub/auth"
	"campus_hub/hub/schema"
	"campus_hub/hub/storage"
	"campus_hub/utils"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProjectService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider
	logger   *slog.Logger

	tasks     TaskService
	documents DocumentService
}

func (s *ProjectService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/", s.CreateProject)
	r.Get("/", s.List)

	r.Route("/{project_id}", func(r chi.Router) {
		r.Use(auth.ProjectAccessOnly(s.db))

		r.Get("/", s.Info)
		r.Put("/", s.UpdateProject)
		r.Delete("/", s.DeleteProject)
		r.Patch("/team", s.AssignTeam)

		r.Mount("/tasks", s.tasks.Routes())
		r.Mount("/documents", s.documents.Routes())
	})

	return r
}

type ProjectInfo struct {
	Id          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	TeamId      *uuid.UUID     `json:"teamId"`
	StartDate   *time.Time     `json:"startDate"`
	EndDate     *time.Time     `json:"endDate"`
	StartTime   *string        `json:"startTime"`
	EndTime     *string        `json:"endTime"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func convertToProjectInfo(project schema.Project) ProjectInfo {
	return ProjectInfo{
		Id:          project.Id,
		Name:        project.Name,
		Description: project.Description,
		Status:      project.Status,
		TeamId:      project.TeamId,
		StartDate:   project.StartDate,
		EndDate:     project.EndDate,
		StartTime:   project.StartTime,
		EndTime:     project.EndTime,
		Metadata:    project.Metadata,
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
	}
}

// checkCanBindTeam ensures non staff users only bind projects to teams they
// belong to or lead.
func checkCanBindTeam(txn *gorm.DB, user schema.User, teamId uuid.UUID) error {
	if err := checkTeamReference(txn, teamId); err != nil {
		return err
	}
	if user.IsStaff() {
		return nil
	}

	team, err := schema.GetTeam(teamId, txn)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}
	isLeader, err := auth.IsTeamLeader(team, user.Id, txn)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}
	if isLeader {
		return nil
	}
	isMember, err := auth.IsTeamMember(teamId, user.Id, txn)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}
	if !isMember {
		return CodedError(fmt.Errorf("user %v is not a member of team %v", user.Id, teamId), http.StatusForbidden)
	}
	return nil
}

type createProjectRequest struct {
	Name        string         `json:"name" validate:"required,max=255"`
	Description string         `json:"description"`
	Status      string         `json:"status" validate:"required"`
	TeamId      *uuid.UUID     `json:"teamId"`
	StartDate   *string        `json:"startDate"`
	EndDate     *string        `json:"endDate"`
	StartTime   *string        `json:"startTime"`
	EndTime     *string        `json:"endTime"`
	Metadata    datatypes.JSON `json:"metadata"`
}

func (s *ProjectService) CreateProject(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := checkEnumValue(schema.CheckValidStatus, params.Status); err != nil {
		writeError(w, s.logger, "creating project", err)
		return
	}

	startDate, startTime, err := parseSchedule(params.StartDate, params.StartTime, "start")
	if err != nil {
		writeError(w, s.logger, "creating project", err)
		return
	}
	endDate, endTime, err := parseSchedule(params.EndDate, params.EndTime, "end")
	if err != nil {
		writeError(w, s.logger, "creating project", err)
		return
	}
	if startDate != nil && endDate != nil && endDate.Before(*startDate) {
		writeError(w, s.logger, "creating project", CodedError(fmt.Errorf("end date must not be before start date"), http.StatusBadRequest))
		return
	}

	project := schema.Project{
		Id:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Status:      params.Status,
		TeamId:      params.TeamId,
		StartDate:   startDate,
		EndDate:     endDate,
		StartTime:   startTime,
		EndTime:     endTime,
		Metadata:    params.Metadata,
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if project.TeamId != nil {
			if err := checkCanBindTeam(txn, user, *project.TeamId); err != nil {
				return err
			}
		}

		if result := txn.Create(&project); result.Error != nil {
			return dbFailure(s.logger, "sql error creating project", result.Error)
		}
		return nil
	})

	if err != nil {
		writeError(w, s.logger, "creating project", err)
		return
	}

	s.logger.Info("created project", "project_id", project.Id, "team_id", project.TeamId, "user_id", user.Id, "code", logging.PROJECT_UPDATE)

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, convertToProjectInfo(project))
}

// projectVisibility describes which projects a user may read. Staff see
// every project, everyone else sees unassigned projects and the projects of
// teams they belong to or lead.
type projectVisibility struct {
	all     bool
	teamIds []uuid.UUID
}

func projectVisibilityFor(db *gorm.DB, user schema.User, logger *slog.Logger) (projectVisibility, error) {
	if user.IsStaff() {
		return projectVisibility{all: true}, nil
	}

	teamIds, err := schema.GetUserTeamIds(user.Id, db)
	if err != nil {
		return projectVisibility{}, err
	}

	var ledIds []uuid.UUID
	if result := db.Model(&schema.Team{}).Where("leader_id = ?", user.Id).Pluck("id", &ledIds); result.Error != nil {
		return projectVisibility{}, dbFailure(logger, "sql error listing led teams", result.Error, "user_id", user.Id)
	}

	seen := make(map[uuid.UUID]bool, len(teamIds)+len(ledIds))
	unique := make([]uuid.UUID, 0, len(teamIds)+len(ledIds))
	for _, id := range append(teamIds, ledIds...) {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	return projectVisibility{teamIds: unique}, nil
}

// projects is a gorm scope over the projects table.
func (v projectVisibility) projects(db *gorm.DB) *gorm.DB {
	switch {
	case v.all:
		return db
	case len(v.teamIds) > 0:
		return db.Where("team_id IS NULL OR team_id IN ?", v.teamIds)
	default:
		return db.Where("team_id IS NULL")
	}
}

// tasks is a gorm scope over the tasks table.
func (v projectVisibility) tasks(db *gorm.DB) *gorm.DB {
	if v.all {
		return db
	}
	visible := db.Session(&gorm.Session{NewDB: true}).Model(&schema.Project{}).Select("id").Scopes(v.projects)
	return db.Where("project_id IN (?)", visible)
}

func (s *ProjectService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	db := s.db.WithContext(r.Context())

	visibility, err := projectVisibilityFor(db, user, s.logger)
	if err != nil {
		writeError(w, s.logger, "listing projects", err)
		return
	}

	var projects []schema.Project
	if result := db.Scopes(visibility.projects).Order("created_at").Find(&projects); result.Error != nil {
		writeError(w, s.logger, "listing projects", dbFailure(s.logger, "sql error listing projects", result.Error))
		return
	}

	infos := make([]ProjectInfo, 0, len(projects))
	for _, project := range projects {
		infos = append(infos, convertToProjectInfo(project))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *ProjectService) Info(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToProjectInfo(project))
}

type updateProjectRequest struct {
	Name        *string        `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string        `json:"description"`
	Status      *string        `json:"status"`
	StartDate   *string        `json:"startDate"`
	EndDate     *string        `json:"endDate"`
	StartTime   *string        `json:"startTime"`
	EndTime     *string        `json:"endTime"`
	Metadata    datatypes.JSON `json:"metadata"`
}

func (s *ProjectService) UpdateProject(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params updateProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	updates := map[string]interface{}{}
	if params.Name != nil {
		updates["name"] = *params.Name
	}
	if params.Description != nil {
		updates["description"] = *params.Description
	}
	if params.Status != nil {
		if err := checkEnumValue(schema.CheckValidStatus, *params.Status); err != nil {
			writeError(w, s.logger, "updating project", err)
			return
		}
		updates["status"] = *params.Status
	}

	schedules := []struct {
		date, clock       *string
		field             string
		dateCol, clockCol string
	}{
		{params.StartDate, params.StartTime, "start", "start_date", "start_time"},
		{params.EndDate, params.EndTime, "end", "end_date", "end_time"},
	}
	for _, sched := range schedules {
		date, clock, err := parseSchedule(sched.date, sched.clock, sched.field)
		if err != nil {
			writeError(w, s.logger, "updating project", err)
			return
		}
		if sched.date != nil {
			updates[sched.dateCol] = date
		}
		if sched.clock != nil {
			updates[sched.clockCol] = clock
		}
	}

	if params.Metadata != nil {
		updates["metadata"] = params.Metadata
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkProjectExists(txn, project.Id); err != nil {
			return err
		}

		if len(updates) > 0 {
			if result := txn.Model(&schema.Project{Id: project.Id}).Updates(updates); result.Error != nil {
				return dbFailure(s.logger, "sql error updating project", result.Error, "project_id", project.Id)
			}
		}

		var err error
		project, err = checkProjectExists(txn, project.Id)
		return err
	})

	if err != nil {
		writeError(w, s.logger, "updating project", err)
		return
	}

	s.logger.Info("updated project", "project_id", project.Id, "code", logging.PROJECT_UPDATE)

	utils.WriteJsonResponse(w, convertToProjectInfo(project))
}

func (s *ProjectService) DeleteProject(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var fileUrls []string
	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkProjectExists(txn, project.Id); err != nil {
			return err
		}

		if err := txn.Model(&schema.Document{}).Where("project_id = ?", project.Id).Pluck("file_url", &fileUrls).Error; err != nil {
			return dbFailure(s.logger, "sql error listing project documents", err, "project_id", project.Id)
		}

		if result := txn.Where("project_id = ?", project.Id).Delete(&schema.Document{}); result.Error != nil {
			return dbFailure(s.logger, "sql error deleting project documents", result.Error, "project_id", project.Id)
		}

		if result := txn.Where("project_id = ?", project.Id).Delete(&schema.Task{}); result.Error != nil {
			return dbFailure(s.logger, "sql error deleting project tasks", result.Error, "project_id", project.Id)
		}

		if result := txn.Delete(&schema.Project{Id: project.Id}); result.Error != nil {
			return dbFailure(s.logger, "sql error deleting project", result.Error, "project_id", project.Id)
		}

		return nil
	})

	if err != nil {
		writeError(w, s.logger, "deleting project", err)
		return
	}

	s.logger.Info("deleted project", "project_id", project.Id, "code", logging.PROJECT_UPDATE)

	s.deleteStoredFiles(r.Context(), project.Id, fileUrls)

	utils.WriteSuccess(w)
}

// deleteStoredFiles removes uploads that belonged to a deleted project's
// documents. Urls hosted elsewhere are left alone.
func (s *ProjectService) deleteStoredFiles(ctx context.Context, projectId uuid.UUID, fileUrls []string) {
	if s.storage == nil {
		return
	}
	for _, fileUrl := range fileUrls {
		storagePath, ok := s.storage.PathFromUrl(fileUrl)
		if !ok {
			continue
		}
		if err := s.storage.Delete(ctx, storagePath); err != nil {
			s.logger.Warn("error deleting stored file of deleted project", "project_id", projectId, "path", storagePath, "error", err, "code", logging.STORAGE)
			continue
		}
		s.logger.Info("deleted stored file", "project_id", projectId, "path", storagePath, "code", logging.STORAGE)
	}
}

type assignTeamRequest struct {
	TeamId *uuid.UUID `json:"teamId" validate:"required"`
}

func (s *ProjectService) AssignTeam(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params assignTeamRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	teamId := *params.TeamId

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkProjectExists(txn, project.Id); err != nil {
			return err
		}

		if err := checkCanBindTeam(txn, user, teamId); err != nil {
			return err
		}

		if result := txn.Model(&schema.Project{Id: project.Id}).Update("team_id", teamId); result.Error != nil {
			return dbFailure(s.logger, "sql error binding project to team", result.Error, "project_id", project.Id, "team_id", teamId)
		}

		members := txn.Model(&schema.TeamMember{}).Select("user_id").Where("team_id = ?", teamId)
		result := txn.Model(&schema.Task{}).
			Where("project_id = ? AND assignee_id IS NOT NULL AND assignee_id NOT IN (?)", project.Id, members).
			Update("assignee_id", nil)
		if result.Error != nil {
			return dbFailure(s.logger, "sql error clearing assignees outside new team", result.Error, "project_id", project.Id)
		}
		if result.RowsAffected > 0 {
			s.logger.Info("cleared assignees that are not members of the new team", "project_id", project.Id, "tasks", result.RowsAffected, "code", logging.TASK_ASSIGN)
		}

		var err error
		project, err = checkProjectExists(txn, project.Id)
		return err
	})

	if err != nil {
		writeError(w, s.logger, "assigning team to project", err)
		return
	}

	s.logger.Info("assigned team to project", "project_id", project.Id, "team_id", teamId, "code", logging.PROJECT_UPDATE)

	utils.WriteJsonResponse(w, convertToProjectInfo(project))
}
