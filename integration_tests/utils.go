package integrationtests

import (
	"log/slog"
	"os"
	"testing"

	"campus_hub/client"

	"github.com/google/uuid"
)

// These tests run against a deployed hub. HUB_URL is the api base, for example
// http://localhost:8000/api/v1, and the admin credentials must match the
// ADMIN_EMAIL and ADMIN_PASSWORD the server was started with.
func hubUrl(t *testing.T) string {
	url := os.Getenv("HUB_URL")
	if url == "" {
		t.Skip("HUB_URL is not set")
	}
	return url
}

func getAdminClient(t *testing.T) *client.HubClient {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	c := client.New(hubUrl(t))
	err := c.Login(os.Getenv("HUB_ADMIN_EMAIL"), os.Getenv("HUB_ADMIN_PASSWORD"))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func newStudent(t *testing.T, base string) (*client.HubClient, string) {
	c := client.New(hubUrl(t))
	name := randomName(base)
	email := name + "@integration.campus.edu"

	if _, err := c.Signup(name, email, "integration_password"); err != nil {
		t.Fatal(err)
	}
	if err := c.Login(email, "integration_password"); err != nil {
		t.Fatal(err)
	}
	return c, email
}

func randomName(base string) string {
	return base + "-" + uuid.New().String()[:8]
}
