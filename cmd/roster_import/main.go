package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"campus_hub/hub/services"
	"campus_hub/utils/logging"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type importEnv struct {
	DatabaseUri string `env:"DATABASE_URI"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

func postgresDsn(uri string) string {
	if uri == "" {
		log.Fatalf("Missing --db_uri arg or DATABASE_URI env")
	}
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func main() {
	rosterPath := flag.String("roster", "", "Path to the roster yaml file")
	dbUri := flag.String("db_uri", "", "Database URI, overrides DATABASE_URI")
	envFile := flag.String("env", "", "File to load env variables from")
	flag.Parse()

	if *rosterPath == "" {
		log.Fatalf("Missing --roster arg")
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", *envFile, err)
		}
	}

	var cfg importEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error loading env: %v", err)
	}
	if *dbUri != "" {
		cfg.DatabaseUri = *dbUri
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("invalid LOG_LEVEL '%v': %v", cfg.LogLevel, err)
	}
	logger := logging.NewLogger(nil, os.Stderr, "roster_import", level)

	file, err := os.Open(*rosterPath)
	if err != nil {
		log.Fatalf("error opening roster: %v", err)
	}
	defer file.Close()

	roster, err := services.ParseRoster(file)
	if err != nil {
		log.Fatalf("invalid roster: %v", err)
	}

	db, err := gorm.Open(postgres.Open(postgresDsn(cfg.DatabaseUri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	report, err := services.ImportRoster(context.Background(), db, roster, logger)
	if err != nil {
		log.Fatalf("roster import failed: %v", err)
	}

	logger.Info("roster import completed", "teams_created", report.TeamsCreated, "members_added", report.MembersAdded, "members_skipped", report.MembersSkipped, "code", logging.SYSTEM)
}
