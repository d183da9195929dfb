package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"campus_hub/hub/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	cookies  []*http.Cookie
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Cookie(cookie *http.Cookie) *httpTestRequest {
	r.cookies = append(r.cookies, cookie)
	return r
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

type statusError struct {
	method   string
	endpoint string
	status   int
	content  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", e.method, e.endpoint, e.status, e.content)
}

var ErrUnauthorized = errors.New("unauthorized")

// statusCode returns the http status carried by an error from Do, 0 if the
// error did not come from a response.
func statusCode(err error) int {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.status
	}
	return 0
}

func (r *httpTestRequest) send() (*httptest.ResponseRecorder, error) {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return nil, fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}
	for _, cookie := range r.cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	return w, nil
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	w, err := r.send()
	if err != nil {
		return err
	}

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return &statusError{method: r.method, endpoint: r.endpoint, status: res.StatusCode, content: w.Body.String()}
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

// Raw returns the recorded response without checking the status.
func (r *httpTestRequest) Raw() *http.Response {
	w, err := r.send()
	if err != nil {
		panic(err)
	}
	return w.Result()
}

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Put(endpoint string) *httpTestRequest {
	return c.request("PUT", endpoint)
}

func (c *client) Patch(endpoint string) *httpTestRequest {
	return c.request("PATCH", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(name, email, password string) (loginInfo, error) {
	body := map[string]string{"name": name, "email": email, "password": password}

	var res services.RegisterResponse
	err := c.Post("/auth/register").Json(body).Do(&res)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res services.LoginResponse
	err := c.Post("/auth/login").Json(login).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.AccessToken
	c.userId = res.UserId.String()

	return nil
}

func (c *client) logout() error {
	return c.Post("/auth/logout").Do(nil)
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/users/me").Do(&res)
	return res, err
}

func (c *client) createTeam(name string) (services.TeamInfo, error) {
	var res services.TeamInfo
	err := c.Post("/teams").Json(map[string]string{"name": name, "description": name + " team"}).Do(&res)
	return res, err
}

func (c *client) teamInfo(teamId string) (services.TeamInfo, error) {
	var res services.TeamInfo
	err := c.Get(fmt.Sprintf("/teams/%v", teamId)).Do(&res)
	return res, err
}

func (c *client) listTeams() ([]services.TeamInfo, error) {
	var res []services.TeamInfo
	err := c.Get("/teams").Do(&res)
	return res, err
}

func (c *client) deleteTeam(teamId string) error {
	return c.Delete(fmt.Sprintf("/teams/%v", teamId)).Do(nil)
}

func (c *client) addMember(teamId, email, role string) (services.MemberInfo, error) {
	body := map[string]string{"email": email}
	if role != "" {
		body["role"] = role
	}

	var res services.MemberInfo
	err := c.Post(fmt.Sprintf("/teams/%v/members", teamId)).Json(body).Do(&res)
	return res, err
}

func (c *client) listMembers(teamId string) ([]services.MemberInfo, error) {
	var res []services.MemberInfo
	err := c.Get(fmt.Sprintf("/teams/%v/members", teamId)).Do(&res)
	return res, err
}

func (c *client) removeMember(teamId, memberId string) error {
	return c.Delete(fmt.Sprintf("/teams/%v/members/%v", teamId, memberId)).Do(nil)
}

func (c *client) createProject(body map[string]interface{}) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Post("/projects").Json(body).Do(&res)
	return res, err
}

func (c *client) projectInfo(projectId string) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Get(fmt.Sprintf("/projects/%v", projectId)).Do(&res)
	return res, err
}

func (c *client) listProjects() ([]services.ProjectInfo, error) {
	var res []services.ProjectInfo
	err := c.Get("/projects").Do(&res)
	return res, err
}

func (c *client) assignProjectTeam(projectId, teamId string) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Patch(fmt.Sprintf("/projects/%v/team", projectId)).Json(map[string]string{"teamId": teamId}).Do(&res)
	return res, err
}

func (c *client) createTask(projectId string, body map[string]interface{}) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Post(fmt.Sprintf("/projects/%v/tasks", projectId)).Json(body).Do(&res)
	return res, err
}

func (c *client) listTasks(projectId string) ([]services.TaskInfo, error) {
	var res []services.TaskInfo
	err := c.Get(fmt.Sprintf("/projects/%v/tasks", projectId)).Do(&res)
	return res, err
}

func (c *client) taskInfo(projectId, taskId string) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Get(fmt.Sprintf("/projects/%v/tasks/%v", projectId, taskId)).Do(&res)
	return res, err
}

func (c *client) updateTaskStatus(projectId, taskId, status string) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Patch(fmt.Sprintf("/projects/%v/tasks/%v/status", projectId, taskId)).Json(map[string]string{"status": status}).Do(&res)
	return res, err
}

// assignTask sends assigneeId as given, nil clears the assignee.
func (c *client) assignTask(projectId, taskId string, assigneeId interface{}) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Post(fmt.Sprintf("/projects/%v/tasks/%v/assign", projectId, taskId)).Json(map[string]interface{}{"assigneeId": assigneeId}).Do(&res)
	return res, err
}

func (c *client) createDocument(projectId string, body map[string]interface{}) (services.DocumentInfo, error) {
	var res services.DocumentInfo
	err := c.Post(fmt.Sprintf("/projects/%v/documents", projectId)).Json(body).Do(&res)
	return res, err
}

func (c *client) listDocuments(projectId string) ([]services.DocumentInfo, error) {
	var res []services.DocumentInfo
	err := c.Get(fmt.Sprintf("/projects/%v/documents", projectId)).Do(&res)
	return res, err
}

func (c *client) dashboard() (services.DashboardInfo, error) {
	var res services.DashboardInfo
	err := c.Get("/dashboard").Do(&res)
	return res, err
}
