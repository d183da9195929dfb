package services

import (
	"log/slog"
	"net/http"
	"time"

	"campus_hub/hub/auth"
	"campus_hub/hub/mail"
	"campus_hub/hub/schema"
	"campus_hub/hub/storage"
	"campus_hub/utils"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Hub struct {
	user      UserService
	team      TeamService
	project   ProjectService
	upload    UploadService
	dashboard DashboardService

	db     *gorm.DB
	logger *slog.Logger
	stop   chan bool
}

type HubArgs struct {
	PublicUrl string
	// AuthRateLimit is the number of register, login and forgot password
	// requests allowed per client ip each minute.
	AuthRateLimit int
}

func NewHub(db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider, mailer mail.Mailer, logger *slog.Logger, args HubArgs) Hub {
	if args.AuthRateLimit <= 0 {
		args.AuthRateLimit = 20
	}

	return Hub{
		user: UserService{
			db:        db,
			userAuth:  userAuth,
			mailer:    mailer,
			publicUrl: args.PublicUrl,
			rateLimit: args.AuthRateLimit,
			logger:    logger.With("component", "user"),
		},
		team: TeamService{db: db, userAuth: userAuth, logger: logger.With("component", "team")},
		project: ProjectService{
			db:        db,
			storage:   store,
			userAuth:  userAuth,
			logger:    logger.With("component", "project"),
			tasks:     TaskService{db: db, logger: logger.With("component", "task")},
			documents: DocumentService{db: db, logger: logger.With("component", "document")},
		},
		upload:    UploadService{storage: store, userAuth: userAuth, logger: logger.With("component", "upload")},
		dashboard: DashboardService{db: db, userAuth: userAuth, logger: logger.With("component", "dashboard")},
		db:        db,
		logger:    logger,
		stop:      make(chan bool, 1),
	}
}

func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: slog.NewLogLogger(h.logger.Handler(), slog.LevelInfo), NoColor: true,
	}))
	r.Use(instrumentRequests)

	r.Mount("/auth", h.user.AuthRoutes())
	r.Mount("/users", h.user.Routes())
	r.Mount("/teams", h.team.Routes())
	r.Mount("/projects", h.project.Routes())
	r.Mount("/uploads", h.upload.Routes())
	r.Mount("/dashboard", h.dashboard.Routes())

	r.Get("/files/*", h.upload.ServeFile)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (h *Hub) clearExpiredResetTokens() {
	result := h.db.Model(&schema.User{}).
		Where("reset_token IS NOT NULL AND reset_token_expiry < ?", time.Now().UTC()).
		Updates(map[string]interface{}{"reset_token": nil, "reset_token_expiry": nil})
	if result.Error != nil {
		h.logger.Error("token sweep: sql error clearing expired reset tokens", "error", result.Error, "code", logging.AUTH_RESET)
		return
	}
	if result.RowsAffected > 0 {
		resetTokensExpiredMetric.Add(float64(result.RowsAffected))
		h.logger.Info("token sweep: cleared expired reset tokens", "count", result.RowsAffected, "code", logging.AUTH_RESET)
	}
}

// TokenSweep periodically removes reset tokens that can no longer be used. It
// blocks until StopTokenSweep is called.
func (h *Hub) TokenSweep(interval time.Duration) {
	h.logger.Info("token sweep: starting", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.clearExpiredResetTokens()
		case <-h.stop:
			h.logger.Info("token sweep: process stopped")
			return
		}
	}
}

func (h *Hub) StopTokenSweep() {
	close(h.stop)
}
