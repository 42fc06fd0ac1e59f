package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/govgrant/internal/handler"
	"github.com/dukerupert/govgrant/internal/household"
	"github.com/dukerupert/govgrant/internal/metrics"
	"github.com/dukerupert/govgrant/internal/middleware"
	"github.com/dukerupert/govgrant/internal/store"
	ws "github.com/dukerupert/govgrant/internal/websocket"
)

// Config holds the HTTP-facing settings.
type Config struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
	// Now overrides the eligibility clock. Nil means time.Now.
	Now func() time.Time
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	svc           *household.Service
	householdH    *handler.HouseholdHandler
	familyMemberH *handler.FamilyMemberHandler
	referenceH    *handler.ReferenceHandler
	rateLimiter   *middleware.RateLimiter
	registry      *prometheus.Registry
	cfg           Config
	logger        *slog.Logger
}

// New wires stores, service and handlers over db. Metrics are registered on
// reg and served from /metrics.
func New(db *sql.DB, cfg Config, reg *prometheus.Registry, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	opts := []household.Option{
		household.WithLogger(logger.With("component", "household")),
		household.WithMetrics(metrics.New(reg)),
	}
	if cfg.Now != nil {
		opts = append(opts, household.WithClock(cfg.Now))
	}
	svc := household.NewService(
		store.NewHouseholdStore(db),
		store.NewFamilyMemberStore(db),
		store.NewReferenceStore(db),
		opts...,
	)

	handlerLogger := logger.With("component", "handler")
	return &Server{
		db:            db,
		hub:           hub,
		svc:           svc,
		householdH:    handler.NewHouseholdHandler(svc, hub, handlerLogger),
		familyMemberH: handler.NewFamilyMemberHandler(svc, hub, handlerLogger),
		referenceH:    handler.NewReferenceHandler(svc, handlerLogger),
		rateLimiter:   middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		registry:      reg,
		cfg:           cfg,
		logger:        logger,
	}
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Service() *household.Service {
	return s.svc
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.cfg.AllowedOrigins))

	limited := middleware.RateLimit(s.rateLimiter, middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/households", func(r chi.Router) {
			r.Get("/", s.householdH.List)
			r.With(limited).Post("/", s.householdH.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.householdH.Get)
				r.With(limited).Patch("/", s.householdH.Update)
				r.With(limited).Delete("/", s.householdH.Delete)
				r.With(limited).Post("/add-member", s.householdH.AddMember)
				r.With(limited).Post("/remove-member", s.householdH.RemoveMember)
			})
		})

		r.Route("/family-members", func(r chi.Router) {
			r.Get("/", s.familyMemberH.List)
			r.Get("/{id}", s.familyMemberH.Get)
			r.With(limited).Put("/{id}/spouse", s.familyMemberH.SetSpouse)
		})

		r.Route("/reference/{category}", func(r chi.Router) {
			r.Get("/", s.referenceH.List)
			r.With(limited).Post("/", s.referenceH.Create)
		})
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
