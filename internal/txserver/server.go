// Package txserver implements the transaction service's HTTP API.
package txserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridianfi/ledger/internal/auth"
	"github.com/meridianfi/ledger/internal/ratelimit"
	"github.com/meridianfi/ledger/internal/saga"
	"github.com/meridianfi/ledger/internal/stream"
	"github.com/meridianfi/ledger/internal/txstore"
	"github.com/meridianfi/ledger/internal/web"
)

// Server is the transaction service HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds the dependencies and settings for creating a Server.
type Config struct {
	DB      *txstore.DB
	JWTMgr  *auth.JWTManager
	Saga    *saga.Coordinator
	Stream  *stream.Client
	Limiter ratelimit.Limiter // nil disables rate limiting
	Logger  *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	ServiceName         string
	MaxRequestBodyBytes int64
	AllowedOrigins      []string
	Production          bool
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := &handlers{
		db:           cfg.DB,
		jwtMgr:       cfg.JWTMgr,
		saga:         cfg.Saga,
		stream:       cfg.Stream,
		logger:       cfg.Logger,
		version:      cfg.Version,
		serviceName:  cfg.ServiceName,
		maxBodyBytes: cfg.MaxRequestBodyBytes,
		includeStack: !cfg.Production,
		started:      time.Now(),
	}

	mux := http.NewServeMux()

	// Auth endpoints (register and login are unauthenticated).
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("GET /api/auth/me", h.handleMe)

	// Transaction endpoints (bearer auth enforced by middleware).
	mux.HandleFunc("POST /api/transactions", h.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", h.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", h.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", h.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.handleDeleteTransaction)

	// Health (no auth).
	mux.HandleFunc("GET /health", h.handleHealth)

	skipAuth := []string{"/health", "/api/auth/register", "/api/auth/login"}

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → rate limit → auth → recovery → handler.
	var handler http.Handler = mux
	handler = web.Recovery(cfg.Logger, !cfg.Production, handler)
	handler = web.Auth(cfg.JWTMgr, cfg.Logger, skipAuth, handler)
	handler = web.RateLimit(cfg.Limiter, cfg.Logger, handler)
	handler = web.Logging(cfg.Logger, handler)
	handler = web.Tracing(handler)
	handler = web.CORS(cfg.AllowedOrigins, handler)
	handler = web.SecurityHeaders(handler)
	handler = web.RequestID(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
