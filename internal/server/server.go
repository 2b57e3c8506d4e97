// Package server hosts the HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kripteks/tradecore/internal/server/handler"
	"github.com/kripteks/tradecore/internal/server/middleware"
	"github.com/kripteks/tradecore/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Backtest *handler.BacktestHandler
	Bots     *handler.BotHandler
	Scanner  *handler.ScannerHandler
	Strategy *handler.StrategyHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wires the middleware chain (auth,
// request logging, CORS).
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Strategy catalog.
	mux.HandleFunc("GET /api/strategies", handlers.Strategy.List)

	// Backtesting.
	mux.HandleFunc("POST /api/backtests", handlers.Backtest.Run)
	mux.HandleFunc("GET /api/backtests", handlers.Backtest.List)
	mux.HandleFunc("GET /api/backtests/{id}", handlers.Backtest.Get)
	mux.HandleFunc("PUT /api/backtests/{id}/favorite", handlers.Backtest.SetFavorite)
	mux.HandleFunc("DELETE /api/backtests/{id}", handlers.Backtest.Delete)
	mux.HandleFunc("POST /api/backtests/optimize", handlers.Backtest.Optimize)
	mux.HandleFunc("DELETE /api/backtests/optimize/{session_id}", handlers.Backtest.CancelOptimize)
	mux.HandleFunc("POST /api/backtests/batch", handlers.Backtest.RunBatch)

	// Live bots.
	mux.HandleFunc("POST /api/bots", handlers.Bots.Create)
	mux.HandleFunc("GET /api/bots", handlers.Bots.List)
	mux.HandleFunc("GET /api/bots/{id}", handlers.Bots.Get)
	mux.HandleFunc("DELETE /api/bots/{id}", handlers.Bots.Delete)
	mux.HandleFunc("POST /api/bots/{id}/start", handlers.Bots.Start)
	mux.HandleFunc("POST /api/bots/{id}/stop", handlers.Bots.Stop)
	mux.HandleFunc("POST /api/bots/{id}/pause", handlers.Bots.Pause)
	mux.HandleFunc("GET /api/bots/{id}/trades", handlers.Bots.ListTrades)

	// Scanner.
	mux.HandleFunc("POST /api/scan", handlers.Scanner.Scan)

	// WebSocket progress and event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start listens for HTTP requests and blocks until the server errors or is
// shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins. An empty list
// allows every origin.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}
				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
