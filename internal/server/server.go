package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/eventdesk/internal/handler"
	"github.com/dukerupert/eventdesk/internal/metrics"
	"github.com/dukerupert/eventdesk/internal/middleware"
	"github.com/dukerupert/eventdesk/internal/store"
)

type Config struct {
	TokenTTL time.Duration
	// Registry receives the request collectors and backs /metrics. A fresh
	// registry is used when nil.
	Registry *prometheus.Registry
}

type Server struct {
	db           *sql.DB
	authH        *handler.AuthHandler
	eventH       *handler.EventHandler
	venueH       *handler.VenueHandler
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	venueStore := store.NewVenueStore(db)
	eventStore := store.NewEventStore(db)

	return &Server{
		db:           db,
		authH:        handler.NewAuthHandler(userStore, sessionStore, cfg.TokenTTL, logger.With("component", "auth")),
		eventH:       handler.NewEventHandler(eventStore, venueStore, userStore, logger.With("component", "events")),
		venueH:       handler.NewVenueHandler(venueStore, logger.With("component", "venues")),
		userStore:    userStore,
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		registry:     reg,
		metrics:      metrics.New(reg),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// UserStore returns the user store for admin seeding.
func (s *Server) UserStore() *store.UserStore {
	return s.userStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	mux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))

	s.registerProtectedRoutes(mux)

	return middleware.RequestLogger(s.logger.With("component", "http"))(middleware.Instrument(s.metrics)(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)
	wrapped := rl(h)
	return wrapped.ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	requireAuth := middleware.RequireAuth(s.sessionStore, s.userStore)
	user := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return requireAuth(middleware.RequireAdmin(h))
	}

	mux.Handle("POST /api/auth/logout", user(s.authH.Logout))
	mux.Handle("GET /api/users/me", user(s.authH.Me))

	// Events
	mux.Handle("GET /api/events/all", user(s.eventH.ListConfirmed))
	mux.Handle("GET /api/events/hosted", user(s.eventH.ListHosted))
	mux.Handle("GET /api/events/volunteered", user(s.eventH.ListVolunteered))
	mux.Handle("GET /api/events/upcoming_participant", user(s.eventH.ListAttending))
	mux.Handle("GET /api/events/attended", user(s.eventH.ListAttended))
	mux.Handle("POST /api/events/create", user(s.eventH.Create))
	mux.Handle("GET /api/events/details/{id}", user(s.eventH.Get))
	mux.Handle("PUT /api/events/update/{id}", user(s.eventH.Update))
	mux.Handle("DELETE /api/events/delete/{id}", user(s.eventH.Delete))
	mux.Handle("POST /api/events/register_participant/{id}", user(s.eventH.RegisterParticipant))
	mux.Handle("POST /api/events/register_volunteer/{id}", user(s.eventH.RegisterVolunteer))
	mux.Handle("GET /api/events/participant_list/{id}", user(s.eventH.Participants))
	mux.Handle("POST /api/events/{id}/attendance/{userId}", user(s.eventH.MarkAttendance))

	// Approval workflow (admin only)
	mux.Handle("GET /api/events/pending", admin(s.eventH.ListPending))
	mux.Handle("GET /api/events/availability/{id}", admin(s.eventH.Availability))
	mux.Handle("POST /api/events/approve/{id}", admin(s.eventH.Approve))

	// Venues
	mux.Handle("GET /api/venues/all", user(s.venueH.List))
	mux.Handle("GET /api/venues/{id}", user(s.venueH.Get))
	mux.Handle("POST /api/venues/create", admin(s.venueH.Create))
	mux.Handle("PUT /api/venues/update/{id}", admin(s.venueH.Update))
	mux.Handle("DELETE /api/venues/delete/{id}", admin(s.venueH.Delete))
}
