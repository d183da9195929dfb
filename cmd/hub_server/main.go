package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"campus_hub/hub/auth"
	"campus_hub/hub/mail"
	"campus_hub/hub/schema"
	"campus_hub/hub/services"
	"campus_hub/hub/storage"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(schema.AllModels()...)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func initStorage(cfg hubEnv, logger *slog.Logger) storage.Storage {
	if cfg.StorageBackend == "s3" {
		s3Storage, err := storage.NewS3Storage(context.Background(), storage.S3Args{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			PublicUrl:    cfg.S3.PublicUrl,
			UsePathStyle: cfg.S3.UsePathStyle,
		}, logger)
		if err != nil {
			log.Fatalf("error creating s3 storage: %v", err)
		}
		return s3Storage
	}

	publicUrl := strings.TrimSuffix(cfg.PublicUrl, "/") + "/api/v1/files"
	return storage.NewSharedDisk(filepath.Join(cfg.DataDir, "storage"), publicUrl, logger)
}

func initMailer(cfg hubEnv, logger *slog.Logger) mail.Mailer {
	if cfg.Smtp.Host == "" {
		logger.Warn("SMTP_HOST is not set, emails will only be logged")
		return mail.NewLogMailer(logger)
	}
	return mail.NewSmtpMailer(mail.SmtpArgs{
		Host:     cfg.Smtp.Host,
		Port:     cfg.Smtp.Port,
		Username: cfg.Smtp.Username,
		Password: cfg.Smtp.Password,
		From:     cfg.Smtp.From,
	}, logger)
}

func initBlacklist(cfg hubEnv, logger *slog.Logger) auth.TokenBlacklist {
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR is not set, revoked tokens are only tracked in memory")
		return auth.NewMemoryTokenBlacklist()
	}

	blacklist, err := auth.NewRedisTokenBlacklist(auth.RedisArgs{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("error connecting to redis: %v", err)
	}
	return blacklist
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	cfg := loadEnv()

	logFile, err := logging.NewRotatingFile(filepath.Join(cfg.DataDir, "logs/hub.log"), 100)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := logging.NewRotatingFile(filepath.Join(cfg.DataDir, "logs/audit.log"), 100)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	logger := logging.NewLogger(logFile, os.Stderr, "campus_hub", cfg.logLevel())
	slog.SetDefault(logger)
	logger.Info("logging initialized", "log_file", logFile.Filename, "code", logging.SYSTEM)

	db := initDb(postgresDsn(cfg.DatabaseUri))

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		initBlacklist(cfg, logger),
		logger,
		auth.BasicProviderArgs{
			Secret:        []byte(cfg.JwtSecret),
			TokenTtl:      cfg.TokenTtl,
			AdminName:     cfg.AdminName,
			AdminEmail:    strings.ToLower(cfg.AdminEmail),
			AdminPassword: cfg.AdminPassword,
		},
	)
	if err != nil {
		log.Fatalf("error creating identity provider: %v", err)
	}

	hub := services.NewHub(
		db,
		initStorage(cfg, logger),
		identityProvider,
		initMailer(cfg, logger),
		logger,
		services.HubArgs{PublicUrl: cfg.PublicUrl, AuthRateLimit: cfg.AuthRateLimit},
	)

	go hub.TokenSweep(10 * time.Minute)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", hub.Routes())

	logger.Info("starting server", "port", *port, "code", logging.SYSTEM)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
	hub.StopTokenSweep()
}
