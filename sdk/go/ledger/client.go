package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the transaction service
	// (e.g. "http://localhost:8080").
	BaseURL string

	// Username and Password authenticate the client. The client logs in
	// lazily and refreshes the token before it expires.
	Username string
	Password string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the transaction service API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL, Username, or Password is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ledger: BaseURL is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("ledger: Username is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("ledger: Password is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, cfg.Username, cfg.Password, httpClient),
	}, nil
}

// Register creates a new account. It does not require authentication, so a
// freshly constructed client can register the account it will log in with.
func Register(ctx context.Context, baseURL string, req RegisterRequest, httpClient *http.Client) (*User, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/auth/register", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("ledger: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ledger: POST /api/auth/register: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var user User
	if err := handleResponse(resp, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/api/auth/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateTransaction creates a transaction. The call blocks until the audit
// trail confirms the write or the server's ack timeout elapses; on timeout
// the server rolls the transaction back and the call fails with
// IsSagaFailure(err) == true.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*Transaction, error) {
	var tx Transaction
	if err := c.post(ctx, "/api/transactions", req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransaction retrieves one of the caller's transactions by ID.
func (c *Client) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var tx Transaction
	if err := c.get(ctx, "/api/transactions/"+id.String(), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListTransactions retrieves the caller's transactions with optional filters
// and pagination. Nil opts list the first page with server defaults.
func (c *Client) ListTransactions(ctx context.Context, opts *ListOptions) (*TransactionPage, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Status != "" {
			params.Set("status", opts.Status)
		}
		if opts.Currency != "" {
			params.Set("currency", opts.Currency)
		}
		if opts.MinAmount != "" {
			params.Set("minAmount", opts.MinAmount)
		}
		if opts.MaxAmount != "" {
			params.Set("maxAmount", opts.MaxAmount)
		}
		if !opts.StartDate.IsZero() {
			params.Set("startDate", opts.StartDate.Format(time.RFC3339))
		}
		if !opts.EndDate.IsZero() {
			params.Set("endDate", opts.EndDate.Format(time.RFC3339))
		}
		if opts.Page > 0 {
			params.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.SortBy != "" {
			params.Set("sortBy", opts.SortBy)
		}
		if opts.SortOrder != "" {
			params.Set("sortOrder", opts.SortOrder)
		}
	}

	path := "/api/transactions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var page TransactionPage
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdateTransaction applies a partial update to a transaction.
func (c *Client) UpdateTransaction(ctx context.Context, id uuid.UUID, req UpdateTransactionRequest) (*Transaction, error) {
	var tx Transaction
	if err := c.put(ctx, "/api/transactions/"+id.String(), req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// DeleteTransaction deletes a transaction. Returns nil on success (204).
func (c *Client) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	return c.doDelete(ctx, "/api/transactions/"+id.String())
}

// Health checks the server's health status. This endpoint does not require
// authentication and works even if the client has invalid credentials.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: GET /health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var health HealthResponse
	if err := handleResponse(resp, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ledger: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) put(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ledger: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}

	return c.doRequest(ctx, req, nil)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ledger: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content: nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("ledger: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return fmt.Errorf("ledger: response envelope contained no data")
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
