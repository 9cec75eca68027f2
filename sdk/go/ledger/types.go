package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Transaction statuses.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Transaction is a monetary transaction owned by the authenticated user.
// Amount is a decimal string (e.g. "100.50"); the server rejects more than
// two fractional digits.
type Transaction struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"userId"`
	Amount      string         `json:"amount"`
	Currency    string         `json:"currency"`
	Status      string         `json:"status"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// User is the public profile of a registered account.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateTransactionRequest is the body for creating a transaction.
// Amount is a decimal string.
type CreateTransactionRequest struct {
	Amount      string         `json:"amount"`
	Currency    string         `json:"currency"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpdateTransactionRequest is a partial update; nil fields are left unchanged.
// At least one field must be set.
type UpdateTransactionRequest struct {
	Amount      *string        `json:"amount,omitempty"`
	Currency    *string        `json:"currency,omitempty"`
	Status      *string        `json:"status,omitempty"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ListOptions are optional filters for ListTransactions.
// Zero values are omitted from the query.
type ListOptions struct {
	Status    string
	Currency  string
	MinAmount string // decimal string
	MaxAmount string // decimal string
	StartDate time.Time
	EndDate   time.Time
	Page      int
	Limit     int
	SortBy    string // createdAt | updatedAt | amount
	SortOrder string // asc | desc
}

// TransactionPage is one page of transactions.
type TransactionPage struct {
	Items      []Transaction `json:"items"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int64         `json:"total"`
	TotalPages int64         `json:"totalPages"`
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
