package tests

import (
	"net/http"
	"strings"
	"testing"

	"campus_hub/hub/schema"
	"campus_hub/hub/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusCounts(counts []services.StatusCount) map[string]int64 {
	out := make(map[string]int64)
	for _, count := range counts {
		out[count.Status] = count.Count
	}
	return out
}

func TestDashboard(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	require.NoError(t, err)

	info, err := user.dashboard()
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.UserCount, "students without a team only count themselves")
	assert.EqualValues(t, 0, info.ProjectCount)
	assert.Empty(t, info.ProjectSummary)
	assert.Empty(t, info.RecentProjects)

	_, err = user.createTeam("Capstone A")
	require.NoError(t, err)

	statuses := []string{schema.Planned, schema.Planned, schema.InProgress, schema.Completed, schema.OnHold, schema.InProgress}
	var last services.ProjectInfo
	for i, status := range statuses {
		last, err = user.createProject(map[string]interface{}{"name": "Project " + string(rune('A'+i)), "status": status})
		require.NoError(t, err)
	}

	for _, status := range []string{schema.Completed, schema.Completed, schema.Planned} {
		_, err = user.createTask(last.Id.String(), map[string]interface{}{"title": "Task", "status": status, "priority": schema.LowPriority})
		require.NoError(t, err)
	}

	info, err = user.dashboard()
	require.NoError(t, err)

	assert.EqualValues(t, 1, info.TeamCount)
	assert.EqualValues(t, 6, info.ProjectCount)
	assert.EqualValues(t, 3, info.TaskCount)
	assert.Equal(t, map[string]int64{
		schema.Planned: 2, schema.InProgress: 2, schema.Completed: 1, schema.OnHold: 1,
	}, statusCounts(info.ProjectSummary))
	assert.Equal(t, map[string]int64{schema.Completed: 2, schema.Planned: 1}, statusCounts(info.TaskSummary))

	require.Len(t, info.RecentProjects, 5)
	assert.Equal(t, last.Id, info.RecentProjects[0].Id)
}

func TestDashboardHidesOtherTeamsProjects(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	require.NoError(t, err)
	leader, err := env.newUser("leader")
	require.NoError(t, err)
	_, err = env.newUser("member")
	require.NoError(t, err)
	outsider, err := env.newUser("outsider")
	require.NoError(t, err)

	team, err := leader.createTeam("Capstone A")
	require.NoError(t, err)
	_, err = leader.addMember(team.Id.String(), "member@campus.edu", "")
	require.NoError(t, err)

	hidden, err := leader.createProject(map[string]interface{}{"name": "Confidential Prototype", "status": schema.InProgress, "teamId": team.Id})
	require.NoError(t, err)
	_, err = leader.createTask(hidden.Id.String(), map[string]interface{}{"title": "Patent draft", "status": schema.Planned, "priority": schema.HighPriority})
	require.NoError(t, err)

	open, err := outsider.createProject(map[string]interface{}{"name": "Open Project", "status": schema.Planned})
	require.NoError(t, err)

	info, err := outsider.dashboard()
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.ProjectCount)
	assert.EqualValues(t, 0, info.TaskCount)
	assert.EqualValues(t, 0, info.TeamCount)
	assert.EqualValues(t, 1, info.UserCount)
	assert.Equal(t, map[string]int64{schema.Planned: 1}, statusCounts(info.ProjectSummary))
	assert.Empty(t, info.TaskSummary)
	require.Len(t, info.RecentProjects, 1)
	assert.Equal(t, open.Id, info.RecentProjects[0].Id)

	info, err = leader.dashboard()
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.ProjectCount)
	assert.EqualValues(t, 1, info.TaskCount)
	assert.EqualValues(t, 1, info.TeamCount)
	assert.Len(t, info.RecentProjects, 2)

	info, err = admin.dashboard()
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.ProjectCount)
	assert.EqualValues(t, 4, info.UserCount)
}

const testRoster = `
teams:
  - name: Capstone A
    description: Senior design
    leader: bob@x.edu
    members:
      - email: alice@x.edu
      - email: carol@x.edu
        role: guest
  - name: Capstone B
    members:
      - email: Alice@x.edu
      - email: dan@x.edu
`

func TestParseRoster(t *testing.T) {
	roster, err := services.ParseRoster(strings.NewReader(testRoster))
	require.NoError(t, err)
	require.Len(t, roster.Teams, 2)
	assert.Equal(t, "bob@x.edu", roster.Teams[0].Leader)
	assert.Equal(t, schema.GuestRole, roster.Teams[0].Members[1].Role)

	_, err = services.ParseRoster(strings.NewReader("teams:\n  - name: A\n    captain: x@x.edu\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = services.ParseRoster(strings.NewReader("teams:\n  - description: no name\n"))
	assert.Error(t, err)

	_, err = services.ParseRoster(strings.NewReader("teams:\n  - name: A\n    members:\n      - email: not-an-email\n"))
	assert.Error(t, err)

	_, err = services.ParseRoster(strings.NewReader("teams:\n  - name: A\n    members:\n      - email: a@x.edu\n        role: owner\n"))
	assert.Error(t, err)
}

func TestImportRoster(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	require.NoError(t, err)
	user, err := env.newUser("alice")
	require.NoError(t, err)

	err = user.Post("/teams/import").Body(strings.NewReader(testRoster)).Do(nil)
	assert.Equal(t, http.StatusForbidden, statusCode(err))

	err = admin.Post("/teams/import").Body(strings.NewReader("teams: [")).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	var report services.RosterReport
	err = admin.Post("/teams/import").Body(strings.NewReader(testRoster)).Do(&report)
	require.NoError(t, err)
	assert.Equal(t, services.RosterReport{TeamsCreated: 2, MembersAdded: 5}, report)

	teams, err := admin.listTeams()
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "Capstone A", teams[0].Name)
	require.NotNil(t, teams[0].LeaderId)
	assert.Nil(t, teams[1].LeaderId)

	bob, err := schema.GetUserByEmail("bob@x.edu", env.db)
	require.NoError(t, err)
	assert.Equal(t, bob.Id, *teams[0].LeaderId)

	members, err := admin.listMembers(teams[0].Id.String())
	require.NoError(t, err)
	roles := make(map[string]string)
	for _, member := range members {
		roles[member.User.Email] = member.Role
	}
	assert.Equal(t, map[string]string{
		"bob@x.edu": schema.LeaderRole, "alice@x.edu": schema.MemberRole, "carol@x.edu": schema.GuestRole,
	}, roles)

	// Importing again only skips existing members.
	err = admin.Post("/teams/import").Body(strings.NewReader(testRoster)).Do(&report)
	require.NoError(t, err)
	assert.Equal(t, services.RosterReport{MembersSkipped: 5}, report)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestEnv(t)
	client := env.newClient()

	require.NoError(t, client.Get("/health").Do(nil))

	_, err := env.newUser("alice")
	require.NoError(t, err)

	res := client.Get("/metrics").Raw()
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
