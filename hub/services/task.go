package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"campus_hub/hub/auth"
	"campus_hub/hub/schema"
	"campus_hub/utils"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAssigneeNotTeamMember = errors.New("Assignee must be a team member")

// TaskService handles the tasks of a single project. Its routes are mounted
// below the project router, which authenticates the user and resolves the
// project.
type TaskService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func (s *TaskService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.List)
	r.Post("/", s.CreateTask)

	r.Route("/{task_id}", func(r chi.Router) {
		r.Get("/", s.Info)
		r.Put("/", s.UpdateTask)
		r.Delete("/", s.DeleteTask)
		r.Patch("/status", s.UpdateStatus)
		r.Post("/assign", s.Assign)
	})

	return r
}

type TaskAssignee struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarUrl *string   `json:"avatarUrl"`
}

type TaskInfo struct {
	Id          uuid.UUID     `json:"id"`
	ProjectId   uuid.UUID     `json:"projectId"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	DueDate     *time.Time    `json:"dueDate"`
	AssigneeId  *uuid.UUID    `json:"assigneeId"`
	Assignee    *TaskAssignee `json:"assignee"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func convertToTaskInfo(task schema.Task) TaskInfo {
	info := TaskInfo{
		Id:          task.Id,
		ProjectId:   task.ProjectId,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
		DueDate:     task.DueDate,
		AssigneeId:  task.AssigneeId,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
	if task.Assignee != nil {
		info.Assignee = &TaskAssignee{
			Id:        task.Assignee.Id,
			Name:      task.Assignee.Name,
			AvatarUrl: task.Assignee.AvatarUrl,
		}
	}
	return info
}

// shareLock is a row lock that blocks concurrent updates and deletes of the
// rows it reads until the transaction ends.
var shareLock = clause.Locking{Strength: "SHARE"}

// checkAssignee resolves the project's team within txn and verifies that the
// user is a member of it. Projects without a team accept no assignees. The
// project and membership rows stay share locked until txn commits, so the
// team cannot change and the member cannot be removed before the task write
// lands.
func checkAssignee(txn *gorm.DB, projectId, assigneeId uuid.UUID) error {
	project, err := checkProjectExists(txn.Clauses(shareLock), projectId)
	if err != nil {
		return err
	}

	isMember, err := schema.IsProjectTeamMember(project, assigneeId, txn.Clauses(shareLock))
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}
	if !isMember {
		assignRejectedMetric.Inc()
		return CodedError(ErrAssigneeNotTeamMember, http.StatusBadRequest)
	}
	return nil
}

func parseDueDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	due, err := parseDate(*value)
	if err != nil {
		return nil, CodedError(fmt.Errorf("invalid due date '%v'", *value), http.StatusBadRequest)
	}
	return &due, nil
}

func taskIdParam(r *http.Request) (uuid.UUID, error) {
	taskId, err := utils.URLParamUUID(r, "task_id")
	if err != nil {
		return uuid.Nil, CodedError(err, http.StatusBadRequest)
	}
	return taskId, nil
}

func (s *TaskService) List(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var tasks []schema.Task
	result := s.db.WithContext(r.Context()).
		Preload("Assignee").
		Where("project_id = ?", project.Id).
		Order("created_at ASC").Order("id").
		Find(&tasks)
	if result.Error != nil {
		writeError(w, s.logger, "listing tasks", dbFailure(s.logger, "sql error listing tasks", result.Error, "project_id", project.Id))
		return
	}

	infos := make([]TaskInfo, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, convertToTaskInfo(task))
	}

	utils.WriteJsonResponse(w, infos)
}

type createTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	Status      string     `json:"status" validate:"required"`
	Priority    string     `json:"priority" validate:"required"`
	DueDate     *string    `json:"dueDate"`
	AssigneeId  *uuid.UUID `json:"assigneeId"`
}

func (s *TaskService) CreateTask(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createTaskRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := checkEnumValue(schema.CheckValidStatus, params.Status); err != nil {
		writeError(w, s.logger, "creating task", err)
		return
	}
	if err := checkEnumValue(schema.CheckValidPriority, params.Priority); err != nil {
		writeError(w, s.logger, "creating task", err)
		return
	}

	dueDate, err := parseDueDate(params.DueDate)
	if err != nil {
		writeError(w, s.logger, "creating task", err)
		return
	}

	task := schema.Task{
		Id:          uuid.New(),
		ProjectId:   project.Id,
		Title:       params.Title,
		Description: params.Description,
		Status:      params.Status,
		Priority:    params.Priority,
		DueDate:     dueDate,
		AssigneeId:  params.AssigneeId,
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if task.AssigneeId != nil {
			if err := checkAssignee(txn, project.Id, *task.AssigneeId); err != nil {
				return err
			}
		}

		if result := txn.Create(&task); result.Error != nil {
			return dbFailure(s.logger, "sql error creating task", result.Error, "project_id", project.Id)
		}

		var err error
		task, err = checkTaskExists(txn, project.Id, task.Id)
		return err
	})

	if err != nil {
		writeError(w, s.logger, "creating task", err)
		return
	}

	tasksCreatedMetric.Inc()
	s.logger.Info("created task", "project_id", project.Id, "task_id", task.Id, "code", logging.TASK_UPDATE)

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, convertToTaskInfo(task))
}

func (s *TaskService) Info(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	taskId, err := taskIdParam(r)
	if err != nil {
		writeError(w, s.logger, "retrieving task", err)
		return
	}

	task, err := checkTaskExists(s.db.WithContext(r.Context()), project.Id, taskId)
	if err != nil {
		writeError(w, s.logger, "retrieving task", err)
		return
	}

	utils.WriteJsonResponse(w, convertToTaskInfo(task))
}

type updateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *string    `json:"dueDate"`
	AssigneeId  *uuid.UUID `json:"assigneeId"`
}

func (s *TaskService) UpdateTask(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	taskId, err := taskIdParam(r)
	if err != nil {
		writeError(w, s.logger, "updating task", err)
		return
	}

	var params updateTaskRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	updates := map[string]interface{}{}
	if params.Title != nil {
		updates["title"] = *params.Title
	}
	if params.Description != nil {
		updates["description"] = *params.Description
	}
	if params.Status != nil {
		if err := checkEnumValue(schema.CheckValidStatus, *params.Status); err != nil {
			writeError(w, s.logger, "updating task", err)
			return
		}
		updates["status"] = *params.Status
	}
	if params.Priority != nil {
		if err := checkEnumValue(schema.CheckValidPriority, *params.Priority); err != nil {
			writeError(w, s.logger, "updating task", err)
			return
		}
		updates["priority"] = *params.Priority
	}
	if params.DueDate != nil {
		dueDate, err := parseDueDate(params.DueDate)
		if err != nil {
			writeError(w, s.logger, "updating task", err)
			return
		}
		updates["due_date"] = dueDate
	}

	var task schema.Task

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkTaskExists(txn, project.Id, taskId); err != nil {
			return err
		}

		if params.AssigneeId != nil {
			if err := checkAssignee(txn, project.Id, *params.AssigneeId); err != nil {
				return err
			}
			updates["assignee_id"] = *params.AssigneeId
		}

		if len(updates) > 0 {
			if result := txn.Model(&schema.Task{Id: taskId}).Updates(updates); result.Error != nil {
				return dbFailure(s.logger, "sql error updating task", result.Error, "task_id", taskId)
			}
		}

		var err error
		task, err = checkTaskExists(txn, project.Id, taskId)
		return err
	})

	if err != nil {
		writeError(w, s.logger, "updating task", err)
		return
	}

	s.logger.Info("updated task", "project_id", project.Id, "task_id", taskId, "code", logging.TASK_UPDATE)

	utils.WriteJsonResponse(w, convertToTaskInfo(task))
}

func (s *TaskService) DeleteTask(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	taskId, err := taskIdParam(r)
	if err != nil {
		writeError(w, s.logger, "deleting task", err)
		return
	}

	result := s.db.WithContext(r.Context()).Where("id = ? AND project_id = ?", taskId, project.Id).Delete(&schema.Task{})
	if result.Error != nil {
		writeError(w, s.logger, "deleting task", dbFailure(s.logger, "sql error deleting task", result.Error, "task_id", taskId))
		return
	}
	if result.RowsAffected == 0 {
		writeError(w, s.logger, "deleting task", CodedError(schema.ErrTaskNotFound, http.StatusNotFound))
		return
	}

	s.logger.Info("deleted task", "project_id", project.Id, "task_id", taskId, "code", logging.TASK_UPDATE)

	utils.WriteSuccess(w)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *TaskService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	taskId, err := taskIdParam(r)
	if err != nil {
		writeError(w, s.logger, "updating task status", err)
		return
	}

	var params updateStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := checkEnumValue(schema.CheckValidStatus, params.Status); err != nil {
		writeError(w, s.logger, "updating task status", err)
		return
	}

	var task schema.Task

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkTaskExists(txn, project.Id, taskId); err != nil {
			return err
		}

		if result := txn.Model(&schema.Task{Id: taskId}).Update("status", params.Status); result.Error != nil {
			return dbFailure(s.logger, "sql error updating task status", result.Error, "task_id", taskId)
		}

		var err error
		task, err = checkTaskExists(txn, project.Id, taskId)
		return err
	})

	if err != nil {
		writeError(w, s.logger, "updating task status", err)
		return
	}

	s.logger.Info("updated task status", "task_id", taskId, "status", params.Status, "code", logging.TASK_UPDATE)

	utils.WriteJsonResponse(w, convertToTaskInfo(task))
}

type assignRequest struct {
	AssigneeId json.RawMessage `json:"assigneeId"`
}

// parseAssignee returns nil when the request clears the assignment.
func (req assignRequest) parseAssignee() (*uuid.UUID, error) {
	if len(req.AssigneeId) == 0 {
		return nil, CodedError(errors.New("assigneeId must be specified"), http.StatusBadRequest)
	}
	if string(req.AssigneeId) == "null" {
		return nil, nil
	}
	var assigneeId uuid.UUID
	if err := json.Unmarshal(req.AssigneeId, &assigneeId); err != nil {
		return nil, CodedError(fmt.Errorf("invalid assigneeId: %w", err), http.StatusBadRequest)
	}
	return &assigneeId, nil
}

func (s *TaskService) Assign(w http.ResponseWriter, r *http.Request) {
	project, err := auth.ProjectFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	taskId, err := taskIdParam(r)
	if err != nil {
		writeError(w, s.logger, "assigning task", err)
		return
	}

	var params assignRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	assigneeId, err := params.parseAssignee()
	if err != nil {
		writeError(w, s.logger, "assigning task", err)
		return
	}

	var task schema.Task

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkTaskExists(txn, project.Id, taskId); err != nil {
			return err
		}

		if assigneeId != nil {
			if err := checkAssignee(txn, project.Id, *assigneeId); err != nil {
				return err
			}
		}

		var value interface{}
		if assigneeId != nil {
			value = *assigneeId
		}
		if result := txn.Model(&schema.Task{Id: taskId}).Update("assignee_id", value); result.Error != nil {
			return dbFailure(s.logger, "sql error assigning task", result.Error, "task_id", taskId)
		}

		var err error
		task, err = checkTaskExists(txn, project.Id, taskId)
		return err
	})

	if err != nil {
		if errors.Is(err, ErrAssigneeNotTeamMember) {
			s.logger.Warn("rejected assignment to non team member", "task_id", taskId, "assignee_id", assigneeId, "code", logging.TASK_ASSIGN)
		}
		writeError(w, s.logger, "assigning task", err)
		return
	}

	s.logger.Info("assigned task", "task_id", taskId, "assignee_id", assigneeId, "code", logging.TASK_ASSIGN)

	utils.WriteJsonResponse(w, convertToTaskInfo(task))
}
