// Package httpapi exposes the pipeline commands, health checks and metrics over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"admissions-workers/internal/common/database"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/models"
	submitapplication "admissions-workers/internal/workers/pipeline/submit-application"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Pipeline interface {
	StartAsync(ctx context.Context, applicationID string) (string, error)
	ResumeFromAsync(ctx context.Context, applicationID string, stage models.Stage) (string, error)
	GetStatus(ctx context.Context, applicationID string) (*models.StatusView, error)
	Cancel(applicationID string) error
}

// Submitter is the submission job handler; both surfaces share its validation.
type Submitter interface {
	Execute(ctx context.Context, input *submitapplication.Input) (*submitapplication.Output, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, locator string, ttl time.Duration) (string, error)
}

type Deps struct {
	Pipeline  Pipeline
	Submitter Submitter
	// Presigner is optional; without it report-url answers 501.
	Presigner  Presigner
	PresignTTL time.Duration
	Checks     []database.Pinger
}

type API struct {
	deps   Deps
	logger logger.Logger
}

// NewRouter builds the chi router.
func NewRouter(deps Deps, log logger.Logger) *chi.Mux {
	a := &API{deps: deps, logger: logger.Component(log, "http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.accessLog)

	r.Get("/health", a.health)
	r.Get("/ready", a.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/applications", func(r chi.Router) {
		r.Post("/", a.submit)
		r.Route("/{applicationId}", func(r chi.Router) {
			r.Post("/start", a.start)
			r.Post("/resume/{stage}", a.resume)
			r.Post("/cancel", a.cancel)
			r.Get("/status", a.status)
			r.Get("/report-url", a.reportURL)
		})
	})
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		a.logger.Debug("request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     sw.status,
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		})
	})
}
