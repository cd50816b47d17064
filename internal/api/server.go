// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api assembles the gateway's HTTP surface: the middleware chain, the
probes and the versioned routes of each domain handler.

	GET  /health, /ready
	/api/v1/identity    direct identity check
	/api/v1/sso         SSO callback and assertion check
	/api/v1/otp         email and phone one-time codes
	/api/v1/enrollment  profile, biometrics, backup codes, security questions
	/api/v1/session     status, completion, refresh, logout
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/votegate/internal/auth"
	"github.com/taibuivan/votegate/internal/enrollment"
	"github.com/taibuivan/votegate/internal/otp"
	"github.com/taibuivan/votegate/internal/platform/config"
	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/middleware"
)

// Handlers are the route sets mounted by [NewServer].
type Handlers struct {
	Liveness  http.HandlerFunc
	Readiness http.HandlerFunc

	// Auth owns /identity, /sso and /session.
	Auth       *auth.Handler
	OTP        *otp.Handler
	Enrollment *enrollment.Handler
}

// Server is the gateway's [http.Server] together with its router.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router. lifetime bounds background work started by
// the middleware and should be cancelled on shutdown.
func NewServer(lifetime context.Context, cfg *config.Config, logger *slog.Logger, verifier middleware.TokenVerifier, handlers Handlers) *Server {
	router := chi.NewRouter()

	router.Use(
		middleware.RequestID(),
		middleware.StructuredLogger(logger),
		chimw.Timeout(constants.GlobalRequestTimeout),
		middleware.RateLimit(lifetime, constants.DefaultRateLimitRPS, constants.DefaultRateLimitBurst),
		middleware.PanicRecovery(logger),
		middleware.CORS(cfg, cfg.AllowedOriginSuffix),
		middleware.Authenticate(verifier),
		chimw.CleanPath,
	)

	router.Get("/health", handlers.Liveness)
	router.Get("/ready", handlers.Readiness)

	router.Route("/api/v1", func(v1 chi.Router) {
		v1.Mount("/identity", handlers.Auth.IdentityRoutes())
		v1.Mount("/sso", handlers.Auth.SSORoutes())
		v1.Mount("/otp", handlers.OTP.Routes())
		v1.Mount("/enrollment", handlers.Enrollment.Routes())
		v1.Mount("/session", handlers.Auth.SessionRoutes())
	})

	return &Server{
		router: router,
		logger: logger,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadTimeout:       constants.DefaultReadTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}
}

// Handler exposes the router to tests.
func (server *Server) Handler() http.Handler {
	return server.router
}

// ListenAndServe blocks until the server stops; see [http.Server.ListenAndServe].
func (server *Server) ListenAndServe() error {
	server.logger.Info("server_listening", slog.String("addr", server.httpServer.Addr))
	return server.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests for at most timeout.
func (server *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.httpServer.Shutdown(context)
}
