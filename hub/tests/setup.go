package tests

import (
	"bytes"
	"path/filepath"
	"testing"

	"campus_hub/hub/auth"
	"campus_hub/hub/mail"
	"campus_hub/hub/schema"
	"campus_hub/hub/services"
	"campus_hub/hub/storage"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	hub       services.Hub
	api       chi.Router
	db        *gorm.DB
	storage   storage.Storage
	mailer    *mail.RecordingMailer
	blacklist *auth.MemoryTokenBlacklist
}

const (
	adminName     = "Hub Admin"
	adminEmail    = "admin@campus.edu"
	adminPassword = "admin_password123"

	publicUrl = "http://localhost:3000"
)

func openTestDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "hub.db")), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		t.Fatal(err)
	}

	return db
}

func setupTestEnv(t *testing.T) *testEnv {
	db := openTestDb(t)
	logger := logging.Discard()

	store := storage.NewSharedDisk(filepath.Join(t.TempDir(), "storage"), publicUrl+"/api/v1/files", logger)
	mailer := mail.NewRecordingMailer()
	blacklist := auth.NewMemoryTokenBlacklist()

	userAuth, err := auth.NewBasicIdentityProvider(
		db, auth.NewAuditLogger(new(bytes.Buffer)), blacklist, logger,
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminName:     adminName,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	hub := services.NewHub(db, store, userAuth, mailer, logger, services.HubArgs{PublicUrl: publicUrl, AuthRateLimit: 1000})

	return &testEnv{
		hub:       hub,
		api:       hub.Routes(),
		db:        db,
		storage:   store,
		mailer:    mailer,
		blacklist: blacklist,
	}
}

func (t *testEnv) newClient() *client {
	return &client{api: t.api}
}

func (t *testEnv) newUser(name string) (*client, error) {
	c := t.newClient()
	login, err := c.signup(name, name+"@campus.edu", name+"_password")
	if err != nil {
		return nil, err
	}

	err = c.login(login)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (*client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}
