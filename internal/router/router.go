package router

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/FJFJ0400/capture-ai/internal/apperr"
	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/httpx"
	"github.com/FJFJ0400/capture-ai/internal/middleware"
	"github.com/FJFJ0400/capture-ai/internal/observability"
	"github.com/FJFJ0400/capture-ai/internal/purpose"
	"github.com/FJFJ0400/capture-ai/internal/sharestage"
	"github.com/FJFJ0400/capture-ai/internal/todo"
)

const healthTimeout = 2 * time.Second

var errNotFound = apperr.NotFound("Route not found.")

// HealthCheck проверяет одну зависимость.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	APIKey       string
	Captures     *capture.Handler
	Purposes     *purpose.Handler
	Todos        *todo.Handler
	Share        *sharestage.Handler
	Checks       map[string]HealthCheck
	Middleware   []func(http.Handler) http.Handler
	MaxBodyBytes int64
	Logger       zerolog.Logger
}

// New собирает HTTP API: /health и /metrics открыты, /v1 требует API ключ.
func New(deps Dependencies) (http.Handler, error) {
	if deps.Captures == nil || deps.Purposes == nil || deps.Todos == nil || deps.Share == nil {
		return nil, errors.New("all route handlers must be provided")
	}
	if deps.APIKey == "" {
		return nil, errors.New("api key is required")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.AccessLog(deps.Logger))
	r.Use(middleware.SecurityHeaders)
	for _, mw := range deps.Middleware {
		r.Use(mw)
	}

	mountOps(r, deps.Checks)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(deps.APIKey))
		if deps.MaxBodyBytes > 0 {
			r.Use(middleware.RequestSizeLimit(deps.MaxBodyBytes))
		}
		r.Route("/captures", deps.Captures.Routes)
		r.Route("/purposes", deps.Purposes.Routes)
		r.Route("/todos", deps.Todos.Routes)
		r.Route("/share", deps.Share.Routes)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, errNotFound)
	})
	return r, nil
}

// NewOps - служебный роутер воркера: только /health и /metrics.
func NewOps(checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	mountOps(r, checks)
	return r
}

func mountOps(r chi.Router, checks map[string]HealthCheck) {
	r.Get("/health", Health(checks))
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health опрашивает зависимости; 503, если хотя бы одна недоступна.
func Health(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httpx.WriteJSON(w, status, resp)
	}
}
