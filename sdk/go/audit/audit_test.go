package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*http.ServeMux, *Client) {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return mux, c
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC(),
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]any{"code": code, "message": message},
	})
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorContains(t, err, "BaseURL")
}

func TestCreateLog(t *testing.T) {
	mux, c := newTestServer(t)
	logID := uuid.New()
	mux.HandleFunc("POST /api/audit-logs", func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ActionCreate, req.Action)

		writeData(w, http.StatusCreated, Log{
			ID:            logID,
			Action:        req.Action,
			EntityType:    req.EntityType,
			EntityID:      req.EntityID,
			Status:        StatusSuccess,
			CorrelationID: req.CorrelationID,
			ServiceName:   req.ServiceName,
		})
	})

	log, err := c.Create(context.Background(), CreateRequest{
		Action:        ActionCreate,
		EntityType:    "Transaction",
		EntityID:      uuid.NewString(),
		CorrelationID: uuid.NewString(),
		ServiceName:   "transaction-service",
	})
	require.NoError(t, err)
	assert.Equal(t, logID, log.ID)
	assert.Equal(t, StatusSuccess, log.Status)
}

func TestCreateDuplicateConflict(t *testing.T) {
	mux, c := newTestServer(t)
	mux.HandleFunc("POST /api/audit-logs", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusConflict, "CONFLICT", "audit log already recorded for this saga step")
	})

	_, err := c.Create(context.Background(), CreateRequest{Action: ActionCreate})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestListQueryParams(t *testing.T) {
	mux, c := newTestServer(t)
	mux.HandleFunc("GET /api/audit-logs", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, ActionDelete, q.Get("action"))
		assert.Equal(t, "transaction-service", q.Get("serviceName"))
		assert.Equal(t, "3", q.Get("page"))

		writeData(w, http.StatusOK, Page{Items: []Log{{Action: ActionDelete}}, Page: 3, Limit: 10, Total: 21, TotalPages: 3})
	})

	page, err := c.List(context.Background(), &ListOptions{
		Action:      ActionDelete,
		ServiceName: "transaction-service",
		Page:        3,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 21, page.Total)
}

func TestGetByCorrelation(t *testing.T) {
	mux, c := newTestServer(t)
	correlationID := uuid.NewString()
	mux.HandleFunc("GET /api/audit-logs/correlation/{correlationId}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, correlationID, r.PathValue("correlationId"))
		writeData(w, http.StatusOK, []Log{
			{Action: ActionCreate, CorrelationID: correlationID},
			{Action: ActionRollback, CorrelationID: correlationID},
		})
	})

	logs, err := c.GetByCorrelation(context.Background(), correlationID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, ActionRollback, logs[1].Action)
}

func TestGetByEntity(t *testing.T) {
	mux, c := newTestServer(t)
	entityID := uuid.NewString()
	mux.HandleFunc("GET /api/audit-logs/entity/{entityType}/{entityId}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Transaction", r.PathValue("entityType"))
		assert.Equal(t, entityID, r.PathValue("entityId"))
		writeData(w, http.StatusOK, []Log{{EntityID: entityID}})
	})

	logs, err := c.GetByEntity(context.Background(), "Transaction", entityID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestGetNotFound(t *testing.T) {
	mux, c := newTestServer(t)
	mux.HandleFunc("GET /api/audit-logs/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "audit log not found")
	})

	_, err := c.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestHealth(t *testing.T) {
	mux, c := newTestServer(t)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, HealthResponse{Status: "ok", Service: "audit-service"})
	})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "audit-service", health.Service)
}
