// Package server assembles the HTTP + WebSocket API over the simulation
// service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/server/handler"
	"github.com/jchenlabs/marketdrive/internal/server/middleware"
	"github.com/jchenlabs/marketdrive/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	APIKey       string // if empty, authentication is disabled
	RateLimitRPS int    // 0 disables rate limiting
}

// Handlers aggregates the HTTP handlers the server registers. Runs may be
// nil when no persistent store is configured.
type Handlers struct {
	Health    *handler.HealthHandler
	Session   *handler.SessionHandler
	Positions *handler.PositionHandler
	Hedges    *handler.HedgeHandler
	Market    *handler.MarketHandler
	Runs      *handler.RunHandler
}

// Server is the headless HTTP + WebSocket API for the simulation.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. limiter
// may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Session lifecycle.
	mux.HandleFunc("GET /api/session", handlers.Session.GetSession)
	mux.HandleFunc("POST /api/session/reset", handlers.Session.ResetSession)
	mux.HandleFunc("POST /api/session/tick", handlers.Session.Tick)
	mux.HandleFunc("GET /api/session/save", handlers.Session.ExportSave)
	mux.HandleFunc("POST /api/session/save", handlers.Session.ImportSave)

	// Positions.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/history", handlers.Positions.History)
	mux.HandleFunc("POST /api/positions/open", handlers.Positions.OpenPosition)
	mux.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.ClosePosition)
	mux.HandleFunc("POST /api/positions/close-all", handlers.Positions.CloseAll)

	// Hedges.
	mux.HandleFunc("GET /api/hedges", handlers.Hedges.ListHedges)
	mux.HandleFunc("POST /api/hedges", handlers.Hedges.ActivateHedge)

	// Market data.
	mux.HandleFunc("GET /api/ticks", handlers.Market.ListTicks)
	mux.HandleFunc("GET /api/indicators", handlers.Market.Indicators)

	// Run history, only when a store is attached.
	if handlers.Runs != nil {
		mux.HandleFunc("GET /api/runs", handlers.Runs.ListRuns)
		mux.HandleFunc("GET /api/runs/{id}", handlers.Runs.GetRun)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimitRPS > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitRPS, time.Second)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
