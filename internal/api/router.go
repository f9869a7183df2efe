package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/m7moud/notification-queue/internal/notification"
	"github.com/m7moud/notification-queue/internal/queue"
)

// Handler serves the admin notification feed and queue status endpoints.
type Handler struct {
	notifications *notification.Service
	registry      *queue.Manager[json.RawMessage]
	logger        logrus.FieldLogger
	now           func() time.Time
}

// NewRouter builds the HTTP routes. gatherer backs /metrics.
func NewRouter(notifications *notification.Service, registry *queue.Manager[json.RawMessage], gatherer prometheus.Gatherer, logger logrus.FieldLogger) http.Handler {
	h := &Handler{
		notifications: notifications,
		registry:      registry,
		logger:        logger.WithField("component", "http"),
		now:           time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.getNotifications)
			r.Post("/", h.publishNotification)
			r.Get("/received", h.listReceived)
			r.Post("/test", h.sendTestNotification)
			r.Post("/{id}/read", h.markAsRead)
		})
		r.Route("/queues", func(r chi.Router) {
			r.Get("/", h.queueStatus)
			r.Post("/selftest", h.basicQueueTest)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}
