// Package httptransport assembles the HTTP surface: exception lifecycle
// routes, the catalog and directory routes, attachments, health, and metrics.
package httptransport

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ems/internal/attachment"
	exceptionhandler "ems/internal/exception/handler"
	"ems/internal/exceptiontype"
	"ems/internal/platform/metrics"
	"ems/internal/platform/middleware"
	"ems/internal/platform/postgres"
	platformredis "ems/internal/platform/redis"
	"ems/internal/transport/http/shared"
	"ems/internal/user"
)

// Handler carries the services the secondary routes delegate to. Exception
// routes live in their own handler package.
type Handler struct {
	types       *exceptiontype.Service
	users       *user.Service
	attachments *attachment.Service
}

// Deps collects everything the router mounts.
type Deps struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Exceptions  exceptionhandler.Service
	Types       *exceptiontype.Service
	Users       *user.Service
	Attachments *attachment.Service
	DB          *sql.DB
	Redis       *platformredis.Client
}

// NewRouter wires middleware and all endpoints.
func NewRouter(deps Deps) http.Handler {
	h := &Handler{
		types:       deps.Types,
		users:       deps.Users,
		attachments: deps.Attachments,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Latency(deps.Metrics))
	}

	r.Get("/healthz", healthHandler(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		exceptionhandler.New(deps.Exceptions, deps.Logger).Register(r)

		r.Post("/exception-types", h.handleCreateType)
		r.Get("/exception-types", h.handleListTypes)
		r.Get("/exception-types/{id}", h.handleGetType)

		r.Post("/users", h.handleCreateUser)
		r.Get("/users", h.handleListUsers)

		if deps.Attachments != nil {
			r.Post("/exceptions/{id}/attachments/presign-upload", h.handlePresignUpload)
			r.Get("/exceptions/{id}/attachments", h.handleListAttachments)
			r.Get("/attachments/{attachmentID}/presign-download", h.handlePresignDownload)
		}
	})

	return r
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{}
		healthy := true

		if deps.DB != nil {
			if err := postgres.Health(ctx, deps.DB); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			} else {
				checks["postgres"] = "ok"
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		overall := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		shared.WriteJSON(w, status, map[string]any{
			"status": overall,
			"checks": checks,
		})
	}
}
