package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/proxyctl/internal/api/handler"
	mw "github.com/edvin/proxyctl/internal/api/middleware"
	"github.com/edvin/proxyctl/internal/api/response"
	"github.com/edvin/proxyctl/internal/config"
	"github.com/edvin/proxyctl/internal/core"
	"github.com/edvin/proxyctl/internal/model"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	db       *sql.DB
	cfg      *config.Config
}

func NewServer(logger zerolog.Logger, db *sql.DB, services *core.Services, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		db:       db,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.WriteError(w, http.StatusNotFound, "Not found")
	})

	auth := handler.NewAuth(s.services.Auth, s.cfg.CookieSecure)
	s.router.Post("/auth", auth.Post)

	s.router.Group(func(r chi.Router) {
		r.Use(mw.Auth(s.services.Auth))

		r.Get("/auth", auth.Check)

		domain := handler.NewDomain(s.services.Domain, s.services.Resolver)
		r.Get("/domains", domain.List)
		r.Post("/domains", domain.Create)
		r.Put("/domains", domain.Update)
		r.Delete("/domains", domain.Delete)

		cert := handler.NewCertificate(s.services.Certificate, s.services.Domain)
		r.Get("/certificates", cert.Get)
		r.Post("/certificates", cert.Post)

		nginx := handler.NewNginx(s.services.Proxy)
		r.Get("/nginx", nginx.Get)
		r.Post("/nginx", nginx.Post)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(model.RoleAdmin))

			user := handler.NewUser(s.services.User)
			r.Get("/users", user.List)
			r.Post("/users", user.Post)
			r.Put("/users", user.Update)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.db.PingContext(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
