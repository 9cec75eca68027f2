// Package audit provides a Go client for the audit service API.
//
// The audit service is an internal read surface; it has no authentication.
// Deployments expose it only on trusted networks.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Audit actions.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionRollback = "ROLLBACK"
)

// Audit statuses.
const (
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
	StatusRolledBack = "ROLLED_BACK"
)

// Changes captures entity state around a mutation.
type Changes struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// Log is one immutable audit trail entry.
type Log struct {
	ID            uuid.UUID      `json:"id"`
	Action        string         `json:"action"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	UserID        *string        `json:"userId,omitempty"`
	Status        string         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Changes       *Changes       `json:"changes,omitempty"`
	IPAddress     *string        `json:"ipAddress,omitempty"`
	UserAgent     *string        `json:"userAgent,omitempty"`
	CorrelationID string         `json:"correlationId"`
	ServiceName   string         `json:"serviceName"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// CreateRequest writes an audit log directly, outside the saga path.
type CreateRequest struct {
	Action        string         `json:"action"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	UserID        *string        `json:"userId,omitempty"`
	Status        string         `json:"status,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Changes       *Changes       `json:"changes,omitempty"`
	CorrelationID string         `json:"correlationId"`
	ServiceName   string         `json:"serviceName"`
}

// ListOptions are optional filters for List. Zero values are omitted.
type ListOptions struct {
	Action        string
	EntityType    string
	EntityID      string
	UserID        string
	Status        string
	CorrelationID string
	ServiceName   string
	StartDate     time.Time
	EndDate       time.Time
	Page          int
	Limit         int
	SortOrder     string // asc | desc
}

// Page is one page of audit logs.
type Page struct {
	Items      []Log `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// HealthResponse reports the service's view of its dependencies.
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Broker   string `json:"broker,omitempty"`
	Uptime   int64  `json:"uptime_seconds"`
}

// Error represents an error from the audit service API.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("audit: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsConflict returns true if the error is a 409.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 409
	}
	return false
}

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the audit service (e.g. "http://localhost:8081").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the audit service API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("audit: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// Create writes an audit log directly. The saga path writes through the
// stream instead; this is for services that log outside it.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*Log, error) {
	var log Log
	if err := c.post(ctx, "/api/audit-logs", req, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// List retrieves audit logs with optional filters and pagination.
func (c *Client) List(ctx context.Context, opts *ListOptions) (*Page, error) {
	params := url.Values{}
	if opts != nil {
		set := func(key, val string) {
			if val != "" {
				params.Set(key, val)
			}
		}
		set("action", opts.Action)
		set("entityType", opts.EntityType)
		set("entityId", opts.EntityID)
		set("userId", opts.UserID)
		set("status", opts.Status)
		set("correlationId", opts.CorrelationID)
		set("serviceName", opts.ServiceName)
		set("sortOrder", opts.SortOrder)
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
	}

	path := "/api/audit-logs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var page Page
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get retrieves one audit log by ID.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*Log, error) {
	var log Log
	if err := c.get(ctx, "/api/audit-logs/"+id.String(), &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// GetByCorrelation retrieves all audit logs for one saga, oldest first.
func (c *Client) GetByCorrelation(ctx context.Context, correlationID string) ([]Log, error) {
	var logs []Log
	if err := c.get(ctx, "/api/audit-logs/correlation/"+url.PathEscape(correlationID), &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// GetByEntity retrieves the audit history of one entity, newest first.
func (c *Client) GetByEntity(ctx context.Context, entityType, entityID string) ([]Log, error) {
	path := "/api/audit-logs/entity/" + url.PathEscape(entityType) + "/" + url.PathEscape(entityID)
	var logs []Log
	if err := c.get(ctx, path, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Health checks the server's health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.get(ctx, "/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("audit: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("audit: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("audit: create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("audit: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var envelope apiErrorEnvelope
		if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		} else {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = string(bodyBytes)
		}
		return apiErr
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("audit: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return fmt.Errorf("audit: response envelope contained no data")
	}
	return json.Unmarshal(envelope.Data, dest)
}
