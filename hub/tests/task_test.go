package tests

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"campus_hub/hub/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capstone struct {
	faculty   *client
	alice     *client
	bob       *client
	teamId    string
	projectId string
	aliceId   uuid.UUID
	bobId     uuid.UUID
}

func setupCapstone(t *testing.T, env *testEnv) capstone {
	faculty, err := env.adminClient()
	require.NoError(t, err)

	alice := env.newClient()
	login, err := alice.signup("alice", "alice@x.edu", "alice_password")
	require.NoError(t, err)
	require.NoError(t, alice.login(login))

	bob := env.newClient()
	login, err = bob.signup("bob", "bob@x.edu", "bob_password")
	require.NoError(t, err)
	require.NoError(t, bob.login(login))

	team, err := faculty.createTeam("Capstone A")
	require.NoError(t, err)

	aliceMember, err := faculty.addMember(team.Id.String(), "alice@x.edu", schema.MemberRole)
	require.NoError(t, err)
	bobMember, err := faculty.addMember(team.Id.String(), "bob@x.edu", schema.LeaderRole)
	require.NoError(t, err)

	project, err := faculty.createProject(map[string]interface{}{"name": "Thesis", "status": schema.Planned, "teamId": team.Id})
	require.NoError(t, err)

	return capstone{
		faculty:   faculty,
		alice:     alice,
		bob:       bob,
		teamId:    team.Id.String(),
		projectId: project.Id.String(),
		aliceId:   aliceMember.UserId,
		bobId:     bobMember.UserId,
	}
}

func TestCapstoneScenario(t *testing.T) {
	env := setupTestEnv(t)
	c := setupCapstone(t, env)

	task, err := c.bob.createTask(c.projectId, map[string]interface{}{
		"title": "Draft intro", "status": schema.Planned, "priority": schema.MediumPriority, "assigneeId": c.aliceId,
	})
	require.NoError(t, err)
	require.NotNil(t, task.AssigneeId)
	assert.Equal(t, c.aliceId, *task.AssigneeId)
	assert.Equal(t, schema.Planned, task.Status)
	assert.Equal(t, schema.MediumPriority, task.Priority)

	_, err = c.bob.assignTask(c.projectId, task.Id.String(), uuid.NewString())
	assert.Equal(t, http.StatusBadRequest, statusCode(err))
	assert.Contains(t, err.Error(), "Assignee must be a team member")

	_, err = c.bob.createTask(c.projectId, map[string]interface{}{
		"title": "Draft intro", "status": schema.Planned, "priority": schema.MediumPriority, "assigneeId": uuid.NewString(),
	})
	assert.Equal(t, http.StatusBadRequest, statusCode(err))
	assert.Contains(t, err.Error(), "Assignee must be a team member")

	tasks, err := c.alice.listTasks(c.projectId)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Assignee)
	assert.Equal(t, "alice", tasks[0].Assignee.Name)
}

func TestAssignOutsiderRejected(t *testing.T) {
	env := setupTestEnv(t)
	c := setupCapstone(t, env)

	outsider, err := env.newUser("carol")
	require.NoError(t, err)

	task, err := c.bob.createTask(c.projectId, map[string]interface{}{
		"title": "Survey", "status": schema.Planned, "priority": schema.LowPriority,
	})
	require.NoError(t, err)
	assert.Nil(t, task.AssigneeId)

	_, err = c.bob.assignTask(c.projectId, task.Id.String(), outsider.userId)
	assert.Equal(t, http.StatusBadRequest, statusCode(err), "registered users outside the team cannot be assigned")

	// Admins bypass access checks but not the membership rule.
	_, err = c.faculty.assignTask(c.projectId, task.Id.String(), outsider.userId)
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	task, err = c.bob.taskInfo(c.projectId, task.Id.String())
	require.NoError(t, err)
	assert.Nil(t, task.AssigneeId)
}

func TestAssignAndReread(t *testing.T) {
	env := setupTestEnv(t)
	c := setupCapstone(t, env)

	task, err := c.bob.createTask(c.projectId, map[string]interface{}{
		"title": "Literature review", "status": schema.Planned, "priority": schema.HighPriority,
	})
	require.NoError(t, err)
	taskId := task.Id.String()

	assigned, err := c.bob.assignTask(c.projectId, taskId, c.aliceId.String())
	require.NoError(t, err)
	require.NotNil(t, assigned.AssigneeId)
	assert.Equal(t, c.aliceId, *assigned.AssigneeId)

	reread, err := c.alice.taskInfo(c.projectId, taskId)
	require.NoError(t, err)
	require.NotNil(t, reread.AssigneeId)
	assert.Equal(t, c.aliceId, *reread.AssigneeId)

	reassigned, err := c.bob.assignTask(c.projectId, taskId, c.bobId.String())
	require.NoError(t, err)
	assert.Equal(t, c.bobId, *reassigned.AssigneeId)

	cleared, err := c.bob.assignTask(c.projectId, taskId, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.AssigneeId)

	reread, err = c.bob.taskInfo(c.projectId, taskId)
	require.NoError(t, err)
	assert.Nil(t, reread.AssigneeId)

	err = c.bob.Post("/projects/" + c.projectId + "/tasks/" + taskId + "/assign").Json(map[string]string{}).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(err), "assigneeId must be present")

	_, err = c.bob.assignTask(c.projectId, taskId, "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	_, err = c.bob.assignTask(c.projectId, uuid.NewString(), c.aliceId.String())
	assert.Equal(t, http.StatusNotFound, statusCode(err))
}

func TestTaskStatusRoundTrip(t *testing.T) {
	env := setupTestEnv(t)
	c := setupCapstone(t, env)

	task, err := c.bob.createTask(c.projectId, map[string]interface{}{
		"title": "Write conclusion", "status": schema.Planned, "priority": schema.UrgentPriority, "assigneeId": c.aliceId,
	})
	require.NoError(t, err)
	taskId := task.Id.String()

	for _, status := range []string{schema.InProgress, schema.Completed, schema.Planned, schema.OnHold} {
		updated, err := c.alice.updateTaskStatus(c.projectId, taskId, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)

		reread, err := c.alice.taskInfo(c.projectId, taskId)
		require.NoError(t, err)
		assert.Equal(t, status, reread.Status)
	}

	_, err = c.alice.updateTaskStatus(c.projectId, taskId, "done")
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	reread, err := c.alice.taskInfo(c.projectId, taskId)
	require.NoError(t, err)
	assert.Equal(t, schema.OnHold, reread.Status)

	_, err = c.alice.updateTaskStatus(c.projectId, uuid.NewString(), schema.Completed)
	assert.Equal(t, http.StatusNotFound, statusCode(err))
}

func TestTaskValidation(t *testing.T) {
	env := setupTestEnv(t)
	c := setupCapstone(t, env)

	bodies := []map[string]interface{}{
		{"title": "Bad status", "status": "started", "priority": schema.LowPriority},
		{"title": "Bad priority", "status": schema.Planned, "priority": "critical"},
		{"title": "Bad due date", "status": schema.Planned, "priority": schema.LowPriority, "dueDate": "tomorrow"},
		{"status": schema.Planned, "priority": schema.LowPriority},
	}
	for _, body := range bodies {
		_, err := c.bob.createTask(c.projectId, body)
		assert.Equal(t, http.StatusBadRequest, statusCode(err), body["title"])
	}

	assert.EqualValues(t, 0, countRows(t, env, &schema.Task{}))

	_, err := c.bob.listTasks("not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	_, err = c.bob.listTasks(uuid.NewString())
	assert.Equal(t, http.StatusNotFound, statusCode(err))

	_, err = c.bob.createTask(uuid.NewString(), map[string]interface{}{"title": "Orphan", "status": schema.Planned, "priority": schema.LowPriority})
	assert.Equal(t, http.StatusNotFound, statusCode(err))

	err = c.bob.Get("/projects/" + c.projectId + "/tasks/not-a-uuid").Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(err))
}

func TestUpdateAndDeleteTask(t *testing.T) {
	env := setupTestEnv(t)
	c := setupCapstone(t, env)

	task, err := c.bob.createTask(c.projectId, map[string]interface{}{
		"title": "Methods", "status": schema.Planned, "priority": schema.LowPriority, "dueDate": "2024-05-01",
	})
	require.NoError(t, err)
	require.NotNil(t, task.DueDate)
	assert.True(t, task.DueDate.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

	endpoint := "/projects/" + c.projectId + "/tasks/" + task.Id.String()

	var updated map[string]interface{}
	err = c.bob.Put(endpoint).Json(map[string]interface{}{"title": "Methods and data", "priority": schema.HighPriority, "assigneeId": c.aliceId}).Do(&updated)
	require.NoError(t, err)

	info, err := c.bob.taskInfo(c.projectId, task.Id.String())
	require.NoError(t, err)
	assert.Equal(t, "Methods and data", info.Title)
	assert.Equal(t, schema.HighPriority, info.Priority)
	assert.Equal(t, schema.Planned, info.Status)
	require.NotNil(t, info.AssigneeId)
	assert.Equal(t, c.aliceId, *info.AssigneeId)

	err = c.bob.Put(endpoint).Json(map[string]interface{}{"assigneeId": uuid.NewString()}).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	err = c.bob.Put(endpoint).Json(map[string]interface{}{"priority": "whenever"}).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	require.NoError(t, c.bob.Delete(endpoint).Do(nil))

	_, err = c.bob.taskInfo(c.projectId, task.Id.String())
	assert.Equal(t, http.StatusNotFound, statusCode(err))

	err = c.bob.Delete(endpoint).Do(nil)
	assert.Equal(t, http.StatusNotFound, statusCode(err))
}

func TestTaskOfOtherProjectNotFound(t *testing.T) {
	env := setupTestEnv(t)
	c := setupCapstone(t, env)

	other, err := c.faculty.createProject(map[string]interface{}{"name": "Other", "status": schema.Planned})
	require.NoError(t, err)

	task, err := c.faculty.createTask(other.Id.String(), map[string]interface{}{
		"title": "Elsewhere", "status": schema.Planned, "priority": schema.LowPriority,
	})
	require.NoError(t, err)

	_, err = c.bob.taskInfo(c.projectId, task.Id.String())
	assert.Equal(t, http.StatusNotFound, statusCode(err))

	_, err = c.bob.updateTaskStatus(c.projectId, task.Id.String(), schema.Completed)
	assert.Equal(t, http.StatusNotFound, statusCode(err))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, strings.Contains(err.Error(), "db access failed"))
}
