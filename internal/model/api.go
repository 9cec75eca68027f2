package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pagination bounds for list endpoints.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// PageRequest is the common pagination block for list endpoints.
type PageRequest struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Normalize clamps page and limit into their allowed ranges.
func (p *PageRequest) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
}

// Offset returns the row offset for the normalized page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// SortOrder is a normalized sort direction, "ASC" or "DESC".
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// NormalizeSortOrder maps arbitrary input to a valid order, defaulting to DESC.
func NormalizeSortOrder(s string) SortOrder {
	if strings.EqualFold(s, "asc") {
		return SortAsc
	}
	return SortDesc
}

// Page is the payload shape for paginated list responses.
type Page struct {
	Items      any   `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// NewPage assembles a Page from query results.
func NewPage(items any, req PageRequest, total int64) Page {
	totalPages := total / int64(req.Limit)
	if total%int64(req.Limit) != 0 {
		totalPages++
	}
	return Page{
		Items:      items,
		Page:       req.Page,
		Limit:      req.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// CreateTransactionRequest is the request body for POST /api/transactions.
// Status is intentionally absent: new transactions always start PENDING.
type CreateTransactionRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	Description *string         `json:"description,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// Validate checks the create invariants: amount > 0, currency in the enum.
func (r CreateTransactionRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if err := validateAmountPrecision(r.Amount); err != nil {
		return err
	}
	if !ValidCurrency(r.Currency) {
		return fmt.Errorf("invalid currency %q", r.Currency)
	}
	return nil
}

// UpdateTransactionRequest is the request body for PUT /api/transactions/{id}.
// All fields are optional, but at least one must be present.
type UpdateTransactionRequest struct {
	Amount      *decimal.Decimal   `json:"amount,omitempty"`
	Currency    *Currency          `json:"currency,omitempty"`
	Status      *TransactionStatus `json:"status,omitempty"`
	Description *string            `json:"description,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

// Validate checks that the patch is non-empty and every provided field is valid.
func (r UpdateTransactionRequest) Validate() error {
	if r.Amount == nil && r.Currency == nil && r.Status == nil &&
		r.Description == nil && r.Metadata == nil {
		return fmt.Errorf("update requires at least one field")
	}
	if r.Amount != nil {
		if !r.Amount.IsPositive() {
			return fmt.Errorf("amount must be greater than zero")
		}
		if err := validateAmountPrecision(*r.Amount); err != nil {
			return err
		}
	}
	if r.Currency != nil && !ValidCurrency(*r.Currency) {
		return fmt.Errorf("invalid currency %q", *r.Currency)
	}
	if r.Status != nil && !ValidTransactionStatus(*r.Status) {
		return fmt.Errorf("invalid status %q", *r.Status)
	}
	return nil
}

// Apply returns a copy of t with the patch fields applied.
func (r UpdateTransactionRequest) Apply(t Transaction) Transaction {
	if r.Amount != nil {
		t.Amount = *r.Amount
	}
	if r.Currency != nil {
		t.Currency = *r.Currency
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
	if r.Description != nil {
		t.Description = r.Description
	}
	if r.Metadata != nil {
		t.Metadata = r.Metadata
	}
	return t
}

// validateAmountPrecision enforces NUMERIC(15,2): at most 2 fractional digits
// and at most 13 integer digits.
func validateAmountPrecision(d decimal.Decimal) error {
	if d.Exponent() < -2 {
		return fmt.Errorf("amount supports at most 2 decimal places")
	}
	if d.Abs().GreaterThanOrEqual(decimal.New(1, 13)) {
		return fmt.Errorf("amount exceeds maximum precision of 15 digits")
	}
	return nil
}

// TransactionFilter is the query filter for GET /api/transactions.
type TransactionFilter struct {
	Status    *TransactionStatus
	Currency  *Currency
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time

	PageRequest
	SortBy    string // createdAt | updatedAt | amount
	SortOrder SortOrder
}

// NormalizeSort clamps SortBy to the allowed columns, defaulting to createdAt.
func (f *TransactionFilter) NormalizeSort() {
	switch f.SortBy {
	case "createdAt", "updatedAt", "amount":
	default:
		f.SortBy = "createdAt"
	}
	if f.SortOrder != SortAsc {
		f.SortOrder = SortDesc
	}
}

// AuditLogFilter is the query filter for GET /api/audit-logs.
type AuditLogFilter struct {
	Action        *AuditAction
	EntityType    *string
	EntityID      *string
	UserID        *string
	Status        *AuditStatus
	CorrelationID *string
	ServiceName   *string
	StartDate     *time.Time
	EndDate       *time.Time

	PageRequest
	SortOrder SortOrder
}

// CreateAuditLogRequest is the request body for POST /api/audit-logs and the
// payload of the audit.log.create stream envelope.
type CreateAuditLogRequest struct {
	Action        AuditAction    `json:"action"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	UserID        *string        `json:"userId,omitempty"`
	Status        AuditStatus    `json:"status,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Changes       *Changes       `json:"changes,omitempty"`
	IPAddress     *string        `json:"ipAddress,omitempty"`
	UserAgent     *string        `json:"userAgent,omitempty"`
	CorrelationID string         `json:"correlationId"`
	ServiceName   string         `json:"serviceName"`
}

// Validate enforces the audit envelope invariants.
func (r CreateAuditLogRequest) Validate() error {
	if !ValidAuditAction(r.Action) {
		return fmt.Errorf("invalid action %q", r.Action)
	}
	if r.EntityType == "" {
		return fmt.Errorf("entityType is required")
	}
	if r.EntityID == "" {
		return fmt.Errorf("entityId is required")
	}
	if r.Status != "" && !ValidAuditStatus(r.Status) {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.CorrelationID == "" {
		return fmt.Errorf("correlationId is required")
	}
	if r.ServiceName == "" {
		return fmt.Errorf("serviceName is required")
	}
	return nil
}

// RegisterRequest is the request body for POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks registration input invariants.
func (r RegisterRequest) Validate() error {
	if err := ValidateUsername(r.Username); err != nil {
		return err
	}
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if len(r.Password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	return nil
}

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response for POST /api/auth/login.
type LoginResponse struct {
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
	ExpiresIn   int64       `json:"expiresIn"`
	User        UserSummary `json:"user"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Broker   string `json:"broker,omitempty"`
	Uptime   int64  `json:"uptime_seconds"`
}
