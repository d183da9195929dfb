package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type S3Env struct {
	Bucket       string `env:"S3_BUCKET"`
	Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint     string `env:"S3_ENDPOINT"`
	AccessKey    string `env:"S3_ACCESS_KEY"`
	SecretKey    string `env:"S3_SECRET_KEY"`
	PublicUrl    string `env:"S3_PUBLIC_URL"`
	UsePathStyle bool   `env:"S3_USE_PATH_STYLE"`
}

type SmtpEnv struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"no-reply@campus-hub.local"`
}

type RedisEnv struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type hubEnv struct {
	PublicUrl      string        `env:"PUBLIC_URL,required"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	DataDir        string        `env:"DATA_DIR,required"`
	DatabaseUri    string        `env:"DATABASE_URI,required"`
	JwtSecret      string        `env:"JWT_SECRET,required"`
	TokenTtl       time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	AuthRateLimit  int           `env:"AUTH_RATE_LIMIT" envDefault:"20"`

	AdminName     string `env:"ADMIN_NAME" envDefault:"Administrator"`
	AdminEmail    string `env:"ADMIN_EMAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	StorageBackend string   `env:"STORAGE_BACKEND" envDefault:"disk"`
	S3             S3Env    `env:""`
	Smtp           SmtpEnv  `env:""`
	Redis          RedisEnv `env:""`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

/**
 * ==========================================================================
 * ==== All variables used by the hub server must be loaded here. This   ====
 * ==== is to make the data flow clear so that a user can see what       ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() hubEnv {
	var cfg hubEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error loading env: %v", err)
	}

	if cfg.StorageBackend != "disk" && cfg.StorageBackend != "s3" {
		log.Fatalf("STORAGE_BACKEND must be 'disk' or 's3', got '%v'", cfg.StorageBackend)
	}
	if cfg.StorageBackend == "s3" && cfg.S3.Bucket == "" {
		log.Fatal("S3_BUCKET must be specified when STORAGE_BACKEND is 's3'")
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{cfg.PublicUrl}
	}

	return cfg
}

func (cfg *hubEnv) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("invalid LOG_LEVEL '%v': %v", cfg.LogLevel, err)
	}
	return level
}

func postgresDsn(uri string) string {
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}
