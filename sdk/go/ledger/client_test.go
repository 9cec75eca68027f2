package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer wraps an httptest server that speaks the service's envelope
// format and counts login calls.
type testServer struct {
	*httptest.Server
	mux        *http.ServeMux
	loginCount atomic.Int64
	expiresIn  int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{mux: http.NewServeMux(), expiresIn: 3600}
	ts.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		ts.loginCount.Add(1)

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "password123" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"accessToken": "test-token",
			"tokenType":   "Bearer",
			"expiresIn":   ts.expiresIn,
		})
	})

	ts.Server = httptest.NewServer(ts.mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) newClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: ts.URL, Username: "alice", Password: "password123"})
	require.NoError(t, err)
	return c
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

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Username: "u", Password: "p"})
	assert.ErrorContains(t, err, "BaseURL")

	_, err = NewClient(Config{BaseURL: "http://x", Password: "p"})
	assert.ErrorContains(t, err, "Username")

	_, err = NewClient(Config{BaseURL: "http://x", Username: "u"})
	assert.ErrorContains(t, err, "Password")
}

func TestTokenCachedAcrossRequests(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeData(w, http.StatusOK, User{ID: uuid.New(), Username: "alice", Email: "a@example.com"})
	})

	c := ts.newClient(t)
	ctx := context.Background()

	_, err := c.Me(ctx)
	require.NoError(t, err)
	_, err = c.Me(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, ts.loginCount.Load(), "token should be reused")
}

func TestTokenRefreshedWhenExpiring(t *testing.T) {
	ts := newTestServer(t)
	// Expires inside the 30s refresh margin, so every call re-logs-in.
	ts.expiresIn = 1
	ts.mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, User{Username: "alice"})
	})

	c := ts.newClient(t)
	ctx := context.Background()

	_, err := c.Me(ctx)
	require.NoError(t, err)
	_, err = c.Me(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, ts.loginCount.Load())
}

func TestLoginFailureSurfaced(t *testing.T) {
	ts := newTestServer(t)
	c, err := NewClient(Config{BaseURL: ts.URL, Username: "alice", Password: "wrong"})
	require.NoError(t, err)

	_, err = c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestCreateTransaction(t *testing.T) {
	ts := newTestServer(t)
	txID := uuid.New()
	ts.mux.HandleFunc("POST /api/transactions", func(w http.ResponseWriter, r *http.Request) {
		var req CreateTransactionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "100.50", req.Amount)
		assert.Equal(t, "USD", req.Currency)

		writeData(w, http.StatusCreated, Transaction{
			ID:       txID,
			Amount:   req.Amount,
			Currency: req.Currency,
			Status:   StatusPending,
		})
	})

	c := ts.newClient(t)
	tx, err := c.CreateTransaction(context.Background(), CreateTransactionRequest{
		Amount:   "100.50",
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, txID, tx.ID)
	assert.Equal(t, StatusPending, tx.Status)
	assert.Equal(t, "100.50", tx.Amount)
}

func TestSagaFailureError(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("POST /api/transactions", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError,
			"DISTRIBUTED_TRANSACTION_ERROR",
			"Audit log creation failed or timed out: no acknowledgement within 10s")
	})

	c := ts.newClient(t)
	_, err := c.CreateTransaction(context.Background(), CreateTransactionRequest{Amount: "5", Currency: "USD"})
	require.Error(t, err)
	assert.True(t, IsSagaFailure(err))
	assert.False(t, IsNotFound(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "Audit log creation failed or timed out")
}

func TestListTransactionsQueryParams(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("GET /api/transactions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "COMPLETED", q.Get("status"))
		assert.Equal(t, "EUR", q.Get("currency"))
		assert.Equal(t, "10.00", q.Get("minAmount"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "amount", q.Get("sortBy"))
		assert.Equal(t, "asc", q.Get("sortOrder"))

		writeData(w, http.StatusOK, TransactionPage{
			Items: []Transaction{{Currency: "EUR", Status: StatusCompleted}},
			Page:  2, Limit: 25, Total: 26, TotalPages: 2,
		})
	})

	c := ts.newClient(t)
	page, err := c.ListTransactions(context.Background(), &ListOptions{
		Status:    "COMPLETED",
		Currency:  "EUR",
		MinAmount: "10.00",
		Page:      2,
		Limit:     25,
		SortBy:    "amount",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 26, page.Total)
}

func TestGetTransactionNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("GET /api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "transaction not found")
	})

	c := ts.newClient(t)
	_, err := c.GetTransaction(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDeleteTransactionNoContent(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("DELETE /api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c := ts.newClient(t)
	require.NoError(t, c.DeleteTransaction(context.Background(), uuid.New()))
}

func TestRegisterNoAuth(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()
	ts.mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var req RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeData(w, http.StatusCreated, User{ID: userID, Username: req.Username, Email: req.Email})
	})

	user, err := Register(context.Background(), ts.URL, RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password123",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.EqualValues(t, 0, ts.loginCount.Load())
}

func TestHealthNoAuth(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeData(w, http.StatusOK, HealthResponse{Status: "ok", Service: "transaction-service"})
	})

	c := ts.newClient(t)
	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.EqualValues(t, 0, ts.loginCount.Load())
}

func TestNonEnvelopeErrorBody(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	})

	c := ts.newClient(t)
	_, err := c.Me(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Code)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}
