package integrationtests

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"campus_hub/client"
	"campus_hub/hub/schema"
)

func TestTeamProjectTaskFlow(t *testing.T) {
	admin := getAdminClient(t)

	student, email := newStudent(t, "student")
	outsider, _ := newStudent(t, "outsider")

	team, err := admin.CreateTeam(client.TeamParams{Name: randomName("team")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := admin.DeleteTeam(team.Id); err != nil {
			t.Error(err)
		}
	})

	if _, err := admin.AddMember(team.Id, email, schema.MemberRole); err != nil {
		t.Fatal(err)
	}

	project, err := admin.CreateProject(client.ProjectParams{
		Name: randomName("project"), Status: schema.Planned, TeamId: &team.Id,
		StartDate: "2024-03-01", StartTime: "09:30",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := admin.DeleteProject(project.Id); err != nil {
			t.Error(err)
		}
	})

	if _, err := outsider.ProjectInfo(project.Id); client.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("expected outsider to be forbidden, got %v", err)
	}

	studentId := student.UserId()
	task, err := student.CreateTask(project.Id, client.TaskParams{
		Title: "Literature review", Status: schema.Planned, Priority: schema.MediumPriority, AssigneeId: &studentId,
	})
	if err != nil {
		t.Fatal(err)
	}

	outsiderId := outsider.UserId()
	if _, err := admin.AssignTask(project.Id, task.Id, &outsiderId); client.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected assignment of non member to fail, got %v", err)
	}

	task, err = student.UpdateTaskStatus(project.Id, task.Id, schema.InProgress)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != schema.InProgress || task.AssigneeId == nil || *task.AssigneeId != studentId {
		t.Fatalf("unexpected task state %+v", task)
	}
}

func TestUploadDocument(t *testing.T) {
	student, _ := newStudent(t, "uploader")

	project, err := student.CreateProject(client.ProjectParams{Name: randomName("project"), Status: schema.InProgress})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := student.DeleteProject(project.Id); err != nil {
			t.Error(err)
		}
	})

	path := filepath.Join(t.TempDir(), "proposal.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 integration"), 0644); err != nil {
		t.Fatal(err)
	}

	upload, err := student.UploadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := student.CreateDocument(project.Id, client.DocumentParams{
		Title: "Proposal", FileUrl: upload.FileUrl, FileType: upload.FileType, Size: upload.Size,
	})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != schema.Draft {
		t.Fatalf("expected new document to be a draft, got %v", doc.Status)
	}
}

func TestDashboard(t *testing.T) {
	admin := getAdminClient(t)

	dashboard, err := admin.Dashboard()
	if err != nil {
		t.Fatal(err)
	}
	if dashboard.UserCount < 1 {
		t.Fatalf("expected at least the admin user, got %d", dashboard.UserCount)
	}
	if len(dashboard.RecentProjects) > 5 {
		t.Fatalf("expected at most 5 recent projects, got %d", len(dashboard.RecentProjects))
	}
}
