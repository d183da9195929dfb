package services

import (
	"log/slog"
	"net/http"

	"campus_hub/hub/auth"
	"campus_hub/hub/schema"
	"campus_hub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const recentProjectsLimit = 5

type DashboardService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	logger   *slog.Logger
}

func (s *DashboardService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.Summary)

	return r
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type DashboardInfo struct {
	ProjectSummary []StatusCount `json:"projectSummary"`
	TaskSummary    []StatusCount `json:"taskSummary"`
	UserCount      int64         `json:"userCount"`
	TeamCount      int64         `json:"teamCount"`
	ProjectCount   int64         `json:"projectCount"`
	TaskCount      int64         `json:"taskCount"`
	RecentProjects []ProjectInfo `json:"recentProjects"`
}

func countByStatus(txn *gorm.DB, model interface{}, scope func(*gorm.DB) *gorm.DB) ([]StatusCount, error) {
	counts := make([]StatusCount, 0)
	result := txn.Model(model).Scopes(scope).Select("status, count(*) as count").Group("status").Order("status").Scan(&counts)
	if result.Error != nil {
		return nil, result.Error
	}
	return counts, nil
}

// Summary reports counts over the projects the caller can read. Staff get
// hub wide totals, other users get totals for their own teams.
func (s *DashboardService) Summary(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var info DashboardInfo

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		visibility, err := projectVisibilityFor(txn, user, s.logger)
		if err != nil {
			return err
		}

		info.ProjectSummary, err = countByStatus(txn, &schema.Project{}, visibility.projects)
		if err != nil {
			return dbFailure(s.logger, "sql error summarizing projects", err)
		}

		info.TaskSummary, err = countByStatus(txn, &schema.Task{}, visibility.tasks)
		if err != nil {
			return dbFailure(s.logger, "sql error summarizing tasks", err)
		}

		totals := []struct {
			model interface{}
			scope func(*gorm.DB) *gorm.DB
			dest  *int64
		}{
			{&schema.User{}, visibility.users(user.Id), &info.UserCount},
			{&schema.Team{}, visibility.teams, &info.TeamCount},
			{&schema.Project{}, visibility.projects, &info.ProjectCount},
			{&schema.Task{}, visibility.tasks, &info.TaskCount},
		}
		for _, total := range totals {
			if result := txn.Model(total.model).Scopes(total.scope).Count(total.dest); result.Error != nil {
				return dbFailure(s.logger, "sql error counting rows", result.Error)
			}
		}

		var recent []schema.Project
		if result := txn.Scopes(visibility.projects).Order("created_at DESC").Limit(recentProjectsLimit).Find(&recent); result.Error != nil {
			return dbFailure(s.logger, "sql error listing recent projects", result.Error)
		}
		info.RecentProjects = make([]ProjectInfo, 0, len(recent))
		for _, project := range recent {
			info.RecentProjects = append(info.RecentProjects, convertToProjectInfo(project))
		}

		return nil
	})

	if err != nil {
		writeError(w, s.logger, "retrieving dashboard", err)
		return
	}

	utils.WriteJsonResponse(w, info)
}

func (v projectVisibility) teams(db *gorm.DB) *gorm.DB {
	if v.all {
		return db
	}
	return db.Where("id IN ?", v.teamIds)
}

// users scopes the users table to the caller and the members of their teams.
func (v projectVisibility) users(self uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if v.all {
			return db
		}
		members := db.Session(&gorm.Session{NewDB: true}).Model(&schema.TeamMember{}).Select("user_id").Where("team_id IN ?", v.teamIds)
		return db.Where("id = ? OR id IN (?)", self, members)
	}
}
