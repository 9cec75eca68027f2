package txserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfi/ledger/internal/apperr"
	"github.com/meridianfi/ledger/internal/auth"
	"github.com/meridianfi/ledger/internal/model"
	"github.com/meridianfi/ledger/internal/saga"
	"github.com/meridianfi/ledger/internal/stream"
	"github.com/meridianfi/ledger/internal/txstore"
	"github.com/meridianfi/ledger/internal/web"
)

type handlers struct {
	db           *txstore.DB
	jwtMgr       *auth.JWTManager
	saga         *saga.Coordinator
	stream       *stream.Client
	logger       *slog.Logger
	version      string
	serviceName  string
	maxBodyBytes int64
	includeStack bool
	started      time.Time
}

// fail writes the error envelope for err.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	web.WriteError(w, r, h.logger, err, h.includeStack)
}

// userID extracts the authenticated user's id from the request context.
func (h *handlers) userID(r *http.Request) (uuid.UUID, error) {
	claims := web.ClaimsFromContext(r.Context())
	if claims == nil {
		return uuid.Nil, apperr.Unauthorized("authentication required")
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, apperr.Unauthorized("invalid token subject")
	}
	return id, nil
}

// decode reads a JSON body with the size cap applied.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, target any) error {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	return web.DecodeJSON(r, target)
}

// requestMeta captures client attribution for audit envelopes.
func requestMeta(r *http.Request) saga.RequestMeta {
	meta := saga.RequestMeta{}
	if ip := clientIP(r); ip != "" {
		meta.IPAddress = &ip
	}
	if ua := r.UserAgent(); ua != "" {
		meta.UserAgent = &ua
	}
	return meta
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:   "ok",
		Service:  h.serviceName,
		Version:  h.version,
		Postgres: "up",
		Broker:   "up",
		Uptime:   int64(time.Since(h.started).Seconds()),
	}

	if err := h.db.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Postgres = "down"
	}
	if h.stream != nil && !h.stream.Connected() {
		resp.Status = "degraded"
		resp.Broker = "down"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	web.WriteJSON(w, r, status, resp)
}
