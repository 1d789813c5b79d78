package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeGustas-5427/powermoniter/internal/aggregate"
	"github.com/MeGustas-5427/powermoniter/internal/auth"
	"github.com/MeGustas-5427/powermoniter/internal/status"
	"github.com/MeGustas-5427/powermoniter/internal/store"
	apperrors "github.com/MeGustas-5427/powermoniter/pkg/errors"
)

// Reconciler is the piece of the subscription manager the API drives.
type Reconciler interface {
	ApplyDevice(ctx context.Context, id uuid.UUID) error
	ActiveCount() int
}

// SettingsPublisher pushes configuration down to a device.
type SettingsPublisher interface {
	PublishSettings(dev *store.Device, payload []byte) error
}

// Server wires the HTTP surface to the domain services.
type Server struct {
	repo       *store.Repo
	auth       *auth.Service
	reconciler Reconciler
	engine     *aggregate.Engine
	status     *status.Service
	publisher  SettingsPublisher
}

func NewServer(repo *store.Repo, authSvc *auth.Service, rec Reconciler, engine *aggregate.Engine, statusSvc *status.Service, pub SettingsPublisher) *Server {
	return &Server{
		repo:       repo,
		auth:       authSvc,
		reconciler: rec,
		engine:     engine,
		status:     statusSvc,
		publisher:  pub,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/devices", func(r chi.Router) {
				r.Post("/", s.handleCreateDevice)
				r.Get("/", s.handleListDevices)
				r.Get("/{mac}", s.handleGetDevice)
				r.Patch("/{mac}", s.handleUpdateDevice)
				r.Post("/{mac}/publish", s.handlePublishSettings)
			})

			r.Route("/device-api", func(r chi.Router) {
				r.Get("/devices", s.handleDeviceStatuses)
				r.Get("/devices/{id}/electricity", s.handleElectricity)
			})

			r.Get("/dead-letters", s.handleDeadLetters)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"active_connectors": s.reconciler.ActiveCount(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, v any) {
	writeJSON(w, code, map[string]any{"success": true, "data": v})
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		apperrors.Write(w, appErr)
		return
	}
	apperrors.Write(w, apperrors.Internal(err))
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperrors.BadRequest(apperrors.CodeBadRequest, "malformed request body")
	}
	return nil
}

// observe records per-endpoint request counts and latency using the routed
// pattern, not the raw path, so high-cardinality MACs stay out of labels.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		observeRequest(r.Method+" "+pattern, ww.Status(), time.Since(start))
	})
}
