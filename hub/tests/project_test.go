package tests

import (
	"net/http"
	"testing"
	"time"

	"campus_hub/hub/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRows(t *testing.T, env *testEnv, model interface{}) int64 {
	var count int64
	require.NoError(t, env.db.Model(model).Count(&count).Error)
	return count
}

func TestCreateProjectValidation(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	require.NoError(t, err)

	bodies := []map[string]interface{}{
		{"name": "Bogus Status", "status": "bogus"},
		{"name": "No Status"},
		{"status": schema.Planned},
		{"name": "Missing Team", "status": schema.Planned, "teamId": uuid.NewString()},
		{"name": "Bad Date", "status": schema.Planned, "startDate": "03/01/2024"},
		{"name": "Bad Time", "status": schema.Planned, "startDate": "2024-03-01", "startTime": "25:99"},
		{"name": "Backwards", "status": schema.Planned, "startDate": "2024-03-10", "endDate": "2024-03-01"},
	}

	for _, body := range bodies {
		_, err := user.createProject(body)
		assert.Equal(t, http.StatusBadRequest, statusCode(err), body["name"])
	}

	assert.EqualValues(t, 0, countRows(t, env, &schema.Project{}))
}

func TestCreateProject(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	require.NoError(t, err)

	project, err := user.createProject(map[string]interface{}{
		"name":        "Solar Car",
		"description": "Build a solar car",
		"status":      schema.InProgress,
		"startDate":   "2024-03-01",
		"startTime":   "09:30",
		"endDate":     "2024-06-01T17:00:00Z",
		"metadata":    map[string]interface{}{"course": "ENG 401"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Solar Car", project.Name)
	assert.Equal(t, schema.InProgress, project.Status)
	assert.Nil(t, project.TeamId)
	require.NotNil(t, project.StartDate)
	assert.True(t, project.StartDate.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)), project.StartDate)
	require.NotNil(t, project.StartTime)
	assert.Equal(t, "09:30", *project.StartTime)
	require.NotNil(t, project.EndDate)
	assert.True(t, project.EndDate.Equal(time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)), project.EndDate)
	assert.JSONEq(t, `{"course":"ENG 401"}`, string(project.Metadata))

	info, err := user.projectInfo(project.Id.String())
	require.NoError(t, err)
	assert.Equal(t, project.Id, info.Id)
	assert.Equal(t, project.Name, info.Name)

	_, err = user.projectInfo(uuid.NewString())
	assert.Equal(t, http.StatusNotFound, statusCode(err))

	_, err = user.projectInfo("not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, statusCode(err))
}

func TestUpdateProject(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	require.NoError(t, err)

	project, err := user.createProject(map[string]interface{}{"name": "Drone", "status": schema.Planned})
	require.NoError(t, err)
	endpoint := "/projects/" + project.Id.String()

	err = user.Put(endpoint).Json(map[string]interface{}{"status": "finished"}).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	var updated map[string]interface{}
	err = user.Put(endpoint).Json(map[string]interface{}{"status": schema.OnHold, "description": "waiting on parts"}).Do(&updated)
	require.NoError(t, err)

	info, err := user.projectInfo(project.Id.String())
	require.NoError(t, err)
	assert.Equal(t, schema.OnHold, info.Status)
	assert.Equal(t, "waiting on parts", info.Description)
	assert.Equal(t, "Drone", info.Name)
}

func TestProjectVisibility(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	require.NoError(t, err)
	leader, err := env.newUser("leader")
	require.NoError(t, err)
	member, err := env.newUser("member")
	require.NoError(t, err)
	outsider, err := env.newUser("outsider")
	require.NoError(t, err)

	team, err := leader.createTeam("Capstone A")
	require.NoError(t, err)
	_, err = leader.addMember(team.Id.String(), "member@campus.edu", "")
	require.NoError(t, err)

	bound, err := leader.createProject(map[string]interface{}{"name": "Team Project", "status": schema.Planned, "teamId": team.Id})
	require.NoError(t, err)
	require.NotNil(t, bound.TeamId)
	_, err = outsider.createProject(map[string]interface{}{"name": "Open Project", "status": schema.Planned})
	require.NoError(t, err)

	_, err = outsider.createProject(map[string]interface{}{"name": "Sneaky", "status": schema.Planned, "teamId": team.Id})
	assert.Equal(t, http.StatusForbidden, statusCode(err), "only team members may bind projects to the team")

	for _, c := range []*client{admin, leader, member} {
		projects, err := c.listProjects()
		require.NoError(t, err)
		assert.Len(t, projects, 2)

		_, err = c.projectInfo(bound.Id.String())
		require.NoError(t, err)
	}

	projects, err := outsider.listProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Open Project", projects[0].Name)

	_, err = outsider.projectInfo(bound.Id.String())
	assert.Equal(t, http.StatusForbidden, statusCode(err))

	_, err = outsider.listTasks(bound.Id.String())
	assert.Equal(t, http.StatusForbidden, statusCode(err))
}

func TestDeleteProjectCascades(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	require.NoError(t, err)

	project, err := user.createProject(map[string]interface{}{"name": "Bridge", "status": schema.Planned})
	require.NoError(t, err)
	projectId := project.Id.String()

	other, err := user.createProject(map[string]interface{}{"name": "Tower", "status": schema.Planned})
	require.NoError(t, err)

	for _, id := range []string{projectId, other.Id.String()} {
		_, err = user.createTask(id, map[string]interface{}{"title": "Design", "status": schema.Planned, "priority": schema.LowPriority})
		require.NoError(t, err)
		_, err = user.createDocument(id, map[string]interface{}{"title": "Plan", "fileUrl": "https://files.campus.edu/plan.pdf"})
		require.NoError(t, err)
	}

	require.NoError(t, user.Delete("/projects/"+projectId).Do(nil))

	_, err = user.projectInfo(projectId)
	assert.Equal(t, http.StatusNotFound, statusCode(err))

	assert.EqualValues(t, 1, countRows(t, env, &schema.Project{}))
	assert.EqualValues(t, 1, countRows(t, env, &schema.Task{}))
	assert.EqualValues(t, 1, countRows(t, env, &schema.Document{}))

	tasks, err := user.listTasks(other.Id.String())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestAssignProjectTeam(t *testing.T) {
	env := setupTestEnv(t)

	leader, err := env.newUser("leader")
	require.NoError(t, err)
	_, err = env.newUser("first")
	require.NoError(t, err)
	_, err = env.newUser("both")
	require.NoError(t, err)

	teamA, err := leader.createTeam("Team A")
	require.NoError(t, err)
	teamB, err := leader.createTeam("Team B")
	require.NoError(t, err)

	first, err := leader.addMember(teamA.Id.String(), "first@campus.edu", "")
	require.NoError(t, err)
	both, err := leader.addMember(teamA.Id.String(), "both@campus.edu", "")
	require.NoError(t, err)
	_, err = leader.addMember(teamB.Id.String(), "both@campus.edu", "")
	require.NoError(t, err)

	project, err := leader.createProject(map[string]interface{}{"name": "Satellite", "status": schema.Planned})
	require.NoError(t, err)
	projectId := project.Id.String()

	_, err = leader.createTask(projectId, map[string]interface{}{
		"title": "Unbound", "status": schema.Planned, "priority": schema.LowPriority, "assigneeId": first.UserId,
	})
	assert.Equal(t, http.StatusBadRequest, statusCode(err), "projects without a team accept no assignees")

	_, err = leader.assignProjectTeam(projectId, uuid.NewString())
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	project, err = leader.assignProjectTeam(projectId, teamA.Id.String())
	require.NoError(t, err)
	require.NotNil(t, project.TeamId)
	assert.Equal(t, teamA.Id, *project.TeamId)

	firstTask, err := leader.createTask(projectId, map[string]interface{}{
		"title": "Antenna", "status": schema.Planned, "priority": schema.LowPriority, "assigneeId": first.UserId,
	})
	require.NoError(t, err)
	bothTask, err := leader.createTask(projectId, map[string]interface{}{
		"title": "Solar panels", "status": schema.Planned, "priority": schema.LowPriority, "assigneeId": both.UserId,
	})
	require.NoError(t, err)

	project, err = leader.assignProjectTeam(projectId, teamB.Id.String())
	require.NoError(t, err)
	assert.Equal(t, teamB.Id, *project.TeamId)

	task, err := leader.taskInfo(projectId, firstTask.Id.String())
	require.NoError(t, err)
	assert.Nil(t, task.AssigneeId, "assignees outside the new team are cleared")

	task, err = leader.taskInfo(projectId, bothTask.Id.String())
	require.NoError(t, err)
	require.NotNil(t, task.AssigneeId)
	assert.Equal(t, both.UserId, *task.AssigneeId)
}
