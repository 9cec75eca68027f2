package auditserver

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfi/ledger/internal/apperr"
	"github.com/meridianfi/ledger/internal/auditstore"
	"github.com/meridianfi/ledger/internal/model"
	"github.com/meridianfi/ledger/internal/stream"
	"github.com/meridianfi/ledger/internal/web"
)

type handlers struct {
	db           *auditstore.DB
	stream       *stream.Client
	logger       *slog.Logger
	version      string
	serviceName  string
	maxBodyBytes int64
	includeStack bool
	started      time.Time
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	web.WriteError(w, r, h.logger, err, h.includeStack)
}

// handleCreate writes an audit log directly, bypassing the stream. Primarily
// an internal surface for services that log outside the saga path.
func (h *handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req model.CreateAuditLogRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, apperr.Validation(err.Error()))
		return
	}

	log, err := h.db.Insert(r.Context(), req)
	if err != nil {
		if errors.Is(err, auditstore.ErrDuplicate) {
			h.fail(w, r, apperr.Conflict("audit log already recorded for this saga step"))
			return
		}
		h.fail(w, r, apperr.Database("insert audit log", err))
		return
	}
	web.WriteJSON(w, r, http.StatusCreated, log)
}

func (h *handlers) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items, total, err := h.db.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, apperr.Database("list audit logs", err))
		return
	}
	if items == nil {
		items = []model.AuditLog{}
	}

	filter.Normalize()
	web.WriteJSON(w, r, http.StatusOK, model.NewPage(items, filter.PageRequest, total))
}

func (h *handlers) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, apperr.Validation("invalid id"))
		return
	}

	log, err := h.db.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auditstore.ErrNotFound) {
			h.fail(w, r, apperr.NotFound("audit log not found"))
			return
		}
		h.fail(w, r, apperr.Database("get audit log", err))
		return
	}
	web.WriteJSON(w, r, http.StatusOK, log)
}

func (h *handlers) handleGetByCorrelation(w http.ResponseWriter, r *http.Request) {
	correlationID := r.PathValue("correlationId")
	if correlationID == "" {
		h.fail(w, r, apperr.Validation("correlationId is required"))
		return
	}

	logs, err := h.db.GetByCorrelation(r.Context(), correlationID)
	if err != nil {
		h.fail(w, r, apperr.Database("get audit logs by correlation", err))
		return
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	web.WriteJSON(w, r, http.StatusOK, logs)
}

func (h *handlers) handleGetByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entityType")
	entityID := r.PathValue("entityId")
	if entityType == "" || entityID == "" {
		h.fail(w, r, apperr.Validation("entityType and entityId are required"))
		return
	}

	logs, err := h.db.GetByEntity(r.Context(), entityType, entityID)
	if err != nil {
		h.fail(w, r, apperr.Database("get audit logs by entity", err))
		return
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	web.WriteJSON(w, r, http.StatusOK, logs)
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

func parseAuditFilter(q url.Values) (model.AuditLogFilter, error) {
	var f model.AuditLogFilter

	if v := q.Get("action"); v != "" {
		action := model.AuditAction(v)
		if !model.ValidAuditAction(action) {
			return f, apperr.Validation("invalid action " + strconv.Quote(v))
		}
		f.Action = &action
	}
	if v := q.Get("status"); v != "" {
		status := model.AuditStatus(v)
		if !model.ValidAuditStatus(status) {
			return f, apperr.Validation("invalid status " + strconv.Quote(v))
		}
		f.Status = &status
	}
	if v := q.Get("entityType"); v != "" {
		f.EntityType = &v
	}
	if v := q.Get("entityId"); v != "" {
		f.EntityID = &v
	}
	if v := q.Get("userId"); v != "" {
		f.UserID = &v
	}
	if v := q.Get("correlationId"); v != "" {
		f.CorrelationID = &v
	}
	if v := q.Get("serviceName"); v != "" {
		f.ServiceName = &v
	}
	if v := q.Get("startDate"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation("invalid startDate, want RFC 3339")
		}
		f.StartDate = &ts
	}
	if v := q.Get("endDate"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation("invalid endDate, want RFC 3339")
		}
		f.EndDate = &ts
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, apperr.Validation("invalid page")
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, apperr.Validation("invalid limit")
		}
		f.Limit = n
	}
	f.SortOrder = model.NormalizeSortOrder(q.Get("sortOrder"))
	return f, nil
}
