package services

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_hub_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"method", "route", "code"})

	latencyMetric = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "campus_hub_request_duration_seconds",
		Help:       "HTTP request latency by route",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"method", "route"})

	tasksCreatedMetric       = promauto.NewCounter(prometheus.CounterOpts{Name: "campus_hub_tasks_created_total", Help: "Tasks created"})
	assignRejectedMetric     = promauto.NewCounter(prometheus.CounterOpts{Name: "campus_hub_task_assignments_rejected_total", Help: "Task assignments rejected because the assignee is not a team member"})
	documentsCreatedMetric   = promauto.NewCounter(prometheus.CounterOpts{Name: "campus_hub_documents_created_total", Help: "Documents created"})
	uploadBytesMetric        = promauto.NewSummary(prometheus.SummaryOpts{Name: "campus_hub_upload_bytes", Help: "Size of uploaded files"})
	resetTokensExpiredMetric = promauto.NewCounter(prometheus.CounterOpts{Name: "campus_hub_reset_tokens_expired_total", Help: "Expired password reset tokens cleared by the sweep"})
)

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unknown"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}

func instrumentRequests(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		requestMetric.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		latencyMetric.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	}
	return http.HandlerFunc(handler)
}
