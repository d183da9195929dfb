package auth

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// hubResources are the url parameters naming the hub records a request
// touched.
var hubResources = []string{"team_id", "member_id", "project_id", "task_id", "document_id"}

var redactedQueryParams = map[string]bool{"token": true, "password": true}

func clientIp(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); len(ip) > 0 {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); len(ip) > 0 {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if len(r.RemoteAddr) > 0 {
		return r.RemoteAddr
	}
	return "Unknown"
}

// resourceAttrs reads the hub resource ids from the route context. Nested
// routers fill the context in as they match, so this must be called after the
// request has been served.
func resourceAttrs(r *http.Request) []any {
	attrs := make([]any, 0, len(hubResources))

	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return attrs
	}

	for _, key := range hubResources {
		if value := rctx.URLParam(key); value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	return attrs
}

func queryAttrs(r *http.Request) []any {
	attrs := make([]any, 0)
	for k, v := range r.URL.Query() {
		if redactedQueryParams[strings.ToLower(k)] {
			attrs = append(attrs, slog.String(k, "[redacted]"))
			continue
		}
		attrs = append(attrs, slog.String(k, strings.Join(v, ";")))
	}
	return attrs
}

// AuditLogger writes one json record per authenticated request with the acting
// user, the hub resources it addressed and the response status. It must run
// after the user has been added to the request context.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) AuditLogger {
	return AuditLogger{logger: slog.New(slog.NewJSONHandler(stream, nil))}
}

func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		level := slog.LevelInfo
		if status == http.StatusForbidden || status == http.StatusUnauthorized {
			level = slog.LevelWarn
		}

		log.logger.Log(r.Context(), level, "hub request",
			"user_id", user.Id,
			"email", user.Email,
			"role", user.Role,
			"client_ip", clientIp(r),
			"method", r.Method,
			"url", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			slog.Group("resources", resourceAttrs(r)...),
			slog.Group("query_params", queryAttrs(r)...),
		)
	}
	return http.HandlerFunc(handler)
}
