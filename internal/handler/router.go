// Package handler provides the HTTP API of the Amplify storage manager.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/metrics"
)

// DatabaseChecker reports database reachability for /health.
type DatabaseChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Files    *FilesHandler
	Metrics  *metrics.Metrics
	Database DatabaseChecker
	Logger   zerolog.Logger
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger.With().Str("component", "router").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Middleware)

	r.Get("/health", healthHandler(cfg.Database))

	if cfg.Files != nil {
		cfg.Files.RegisterRoutes(r)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, APIError{
			ErrorResponse:  ErrorResponse{Code: "NotFound", Message: "The requested resource does not exist."},
			HTTPStatusCode: http.StatusNotFound,
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, APIError{
			ErrorResponse:  ErrorResponse{Code: "MethodNotAllowed", Message: "The specified method is not allowed against this resource."},
			HTTPStatusCode: http.StatusMethodNotAllowed,
		})
	})

	return r
}

// healthHandler handles liveness checks.
func healthHandler(db DatabaseChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Health(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// =============================================================================
// Middleware
// =============================================================================

type contextKey string

const userIDKey contextKey = "user_id"

// requireUser reads the caller identity from UserIDHeader.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			writeError(w, ErrMissingUser)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, ErrInvalidUser)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

func userFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			evt := logger.Info()
			if status >= http.StatusInternalServerError {
				evt = logger.Warn()
			}
			evt.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
