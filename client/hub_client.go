package client

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"campus_hub/hub/services"

	"github.com/google/uuid"
)

type HubClient struct {
	BaseClient
	userId uuid.UUID
}

// New returns a client for a hub api mounted at baseUrl, for example
// http://localhost:8000/api/v1.
func New(baseUrl string) *HubClient {
	return &HubClient{BaseClient: NewBaseClient(baseUrl, "")}
}

func (c *HubClient) UserId() uuid.UUID {
	return c.userId
}

func (c *HubClient) Signup(name, email, password string) (uuid.UUID, error) {
	body := map[string]string{"name": name, "email": email, "password": password}

	var res services.RegisterResponse
	if err := c.Post("/auth/register").Json(body).Do(&res); err != nil {
		return uuid.Nil, err
	}
	return res.UserId, nil
}

func (c *HubClient) Login(email, password string) error {
	body := map[string]string{"email": email, "password": password}

	var res services.LoginResponse
	if err := c.Post("/auth/login").Json(body).Do(&res); err != nil {
		return err
	}

	c.authToken = res.AccessToken
	c.userId = res.UserId

	return nil
}

func (c *HubClient) Logout() error {
	err := c.Post("/auth/logout").Do(nil)
	if err != nil {
		return err
	}
	c.authToken = ""
	c.userId = uuid.Nil
	return nil
}

func (c *HubClient) Verify(token string) error {
	return c.Post("/auth/verify").Json(map[string]string{"token": token}).Do(nil)
}

func (c *HubClient) ForgotPassword(email string) error {
	return c.Post("/auth/forgot-password").Json(map[string]string{"email": email}).Do(nil)
}

func (c *HubClient) ResetPassword(token, password string) error {
	body := map[string]string{"token": token, "password": password}
	return c.Post("/auth/reset-password").Json(body).Do(nil)
}

func (c *HubClient) UserInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/users/me").Do(&res)
	return res, err
}

func (c *HubClient) ListUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/users").Do(&res)
	return res, err
}

type TeamParams struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	LeaderId    *uuid.UUID `json:"leaderId,omitempty"`
}

func (c *HubClient) CreateTeam(params TeamParams) (services.TeamInfo, error) {
	var res services.TeamInfo
	err := c.Post("/teams").Json(params).Do(&res)
	return res, err
}

func (c *HubClient) ListTeams() ([]services.TeamInfo, error) {
	var res []services.TeamInfo
	err := c.Get("/teams").Do(&res)
	return res, err
}

func (c *HubClient) TeamInfo(teamId uuid.UUID) (services.TeamInfo, error) {
	var res services.TeamInfo
	err := c.Get(fmt.Sprintf("/teams/%v", teamId)).Do(&res)
	return res, err
}

func (c *HubClient) DeleteTeam(teamId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/teams/%v", teamId)).Do(nil)
}

func (c *HubClient) AddMember(teamId uuid.UUID, email, role string) (services.MemberInfo, error) {
	body := map[string]string{"email": email, "role": role}

	var res services.MemberInfo
	err := c.Post(fmt.Sprintf("/teams/%v/members", teamId)).Json(body).Do(&res)
	return res, err
}

func (c *HubClient) ListMembers(teamId uuid.UUID) ([]services.MemberInfo, error) {
	var res []services.MemberInfo
	err := c.Get(fmt.Sprintf("/teams/%v/members", teamId)).Do(&res)
	return res, err
}

func (c *HubClient) RemoveMember(teamId, memberId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/teams/%v/members/%v", teamId, memberId)).Do(nil)
}

// ImportRoster uploads a roster yaml document, only staff may do this.
func (c *HubClient) ImportRoster(roster io.Reader) (services.RosterReport, error) {
	var res services.RosterReport
	err := c.Post("/teams/import").Header("Content-Type", "application/yaml").Body(roster).Do(&res)
	return res, err
}

type ProjectParams struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Status      string                 `json:"status"`
	TeamId      *uuid.UUID             `json:"teamId,omitempty"`
	StartDate   string                 `json:"startDate,omitempty"`
	EndDate     string                 `json:"endDate,omitempty"`
	StartTime   string                 `json:"startTime,omitempty"`
	EndTime     string                 `json:"endTime,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (c *HubClient) CreateProject(params ProjectParams) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Post("/projects").Json(params).Do(&res)
	return res, err
}

func (c *HubClient) ListProjects() ([]services.ProjectInfo, error) {
	var res []services.ProjectInfo
	err := c.Get("/projects").Do(&res)
	return res, err
}

func (c *HubClient) ProjectInfo(projectId uuid.UUID) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Get(fmt.Sprintf("/projects/%v", projectId)).Do(&res)
	return res, err
}

func (c *HubClient) AssignProjectTeam(projectId, teamId uuid.UUID) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Patch(fmt.Sprintf("/projects/%v/team", projectId)).Json(map[string]uuid.UUID{"teamId": teamId}).Do(&res)
	return res, err
}

func (c *HubClient) DeleteProject(projectId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/projects/%v", projectId)).Do(nil)
}

type TaskParams struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     string     `json:"dueDate,omitempty"`
	AssigneeId  *uuid.UUID `json:"assigneeId,omitempty"`
}

func (c *HubClient) CreateTask(projectId uuid.UUID, params TaskParams) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Post(fmt.Sprintf("/projects/%v/tasks", projectId)).Json(params).Do(&res)
	return res, err
}

func (c *HubClient) ListTasks(projectId uuid.UUID) ([]services.TaskInfo, error) {
	var res []services.TaskInfo
	err := c.Get(fmt.Sprintf("/projects/%v/tasks", projectId)).Do(&res)
	return res, err
}

func (c *HubClient) TaskInfo(projectId, taskId uuid.UUID) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Get(fmt.Sprintf("/projects/%v/tasks/%v", projectId, taskId)).Do(&res)
	return res, err
}

func (c *HubClient) UpdateTaskStatus(projectId, taskId uuid.UUID, status string) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Patch(fmt.Sprintf("/projects/%v/tasks/%v/status", projectId, taskId)).Json(map[string]string{"status": status}).Do(&res)
	return res, err
}

// AssignTask sets the task's assignee, a nil assigneeId clears it.
func (c *HubClient) AssignTask(projectId, taskId uuid.UUID, assigneeId *uuid.UUID) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Post(fmt.Sprintf("/projects/%v/tasks/%v/assign", projectId, taskId)).Json(map[string]*uuid.UUID{"assigneeId": assigneeId}).Do(&res)
	return res, err
}

type DocumentParams struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FileUrl     string `json:"fileUrl"`
	FileType    string `json:"fileType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

func (c *HubClient) CreateDocument(projectId uuid.UUID, params DocumentParams) (services.DocumentInfo, error) {
	var res services.DocumentInfo
	err := c.Post(fmt.Sprintf("/projects/%v/documents", projectId)).Json(params).Do(&res)
	return res, err
}

func (c *HubClient) ListDocuments(projectId uuid.UUID) ([]services.DocumentInfo, error) {
	var res []services.DocumentInfo
	err := c.Get(fmt.Sprintf("/projects/%v/documents", projectId)).Do(&res)
	return res, err
}

// UploadFile sends a local file to the upload endpoint. The returned url can
// be passed to CreateDocument.
func (c *HubClient) UploadFile(path string) (services.UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return services.UploadResponse{}, fmt.Errorf("unable to open file %v: %w", path, err)
	}
	defer file.Close()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return services.UploadResponse{}, fmt.Errorf("error creating request part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return services.UploadResponse{}, fmt.Errorf("error writing to mulitpart request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return services.UploadResponse{}, fmt.Errorf("error closing mutlipart writer: %w", err)
	}

	var res services.UploadResponse
	err = c.Post("/uploads").Header("Content-Type", writer.FormDataContentType()).Body(body).Do(&res)
	return res, err
}

func (c *HubClient) Dashboard() (services.DashboardInfo, error) {
	var res services.DashboardInfo
	err := c.Get("/dashboard").Do(&res)
	return res, err
}
