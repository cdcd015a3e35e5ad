package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eldershield/eldershield-backend/internal/infrastructure/config"
	"github.com/eldershield/eldershield-backend/internal/infrastructure/telemetry"
)

// Server wraps the HTTP server and its middleware stack
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer assembles the full middleware chain and route table
func NewServer(cfg *config.Config, handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	limiter := NewRateLimiter(cfg.Security.RateLimit.RequestsPerSecond, cfg.Security.RateLimit.BurstSize)

	protect := func(next http.Handler) http.Handler {
		return Chain(next,
			AuthMiddleware(AuthConfig{JWTSecret: cfg.Security.JWTSecret}),
			limiter.Middleware(),
		)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, protect)

	root := Chain(mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		TracingMiddleware(telemetry.Tracer("api.rest")),
		LoggingMiddleware(logger),
	)

	return &Server{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      root,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  2 * time.Minute,
		},
	}
}

// Start serves until the listener closes
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
