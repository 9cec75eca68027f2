// Package auditserver implements the audit service's HTTP API: a read
// surface over the immutable audit trail plus a direct write endpoint for
// services that log outside the saga path.
package auditserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridianfi/ledger/internal/auditstore"
	"github.com/meridianfi/ledger/internal/stream"
	"github.com/meridianfi/ledger/internal/web"
)

// Server is the audit service HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds the dependencies and settings for creating a Server.
type Config struct {
	DB     *auditstore.DB
	Stream *stream.Client
	Logger *slog.Logger

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
		stream:       cfg.Stream,
		logger:       cfg.Logger,
		version:      cfg.Version,
		serviceName:  cfg.ServiceName,
		maxBodyBytes: cfg.MaxRequestBodyBytes,
		includeStack: !cfg.Production,
		started:      time.Now(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/audit-logs", h.handleCreate)
	mux.HandleFunc("GET /api/audit-logs", h.handleList)
	mux.HandleFunc("GET /api/audit-logs/correlation/{correlationId}", h.handleGetByCorrelation)
	mux.HandleFunc("GET /api/audit-logs/entity/{entityType}/{entityId}", h.handleGetByEntity)
	mux.HandleFunc("GET /api/audit-logs/{id}", h.handleGetByID)

	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = web.Recovery(cfg.Logger, !cfg.Production, handler)
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
