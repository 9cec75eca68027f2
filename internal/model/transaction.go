package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency enumerates the supported transaction currencies.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyCHF Currency = "CHF"
	CurrencyCNY Currency = "CNY"
)

// ValidCurrency reports whether c is one of the supported currencies.
func ValidCurrency(c Currency) bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyJPY,
		CurrencyCAD, CurrencyAUD, CurrencyCHF, CurrencyCNY:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
	StatusProcessing TransactionStatus = "PROCESSING"
)

// ValidTransactionStatus reports whether s is a known status value.
func ValidTransactionStatus(s TransactionStatus) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusProcessing:
		return true
	}
	return false
}

// Transaction is a financial transaction record owned by a user.
// Amount carries exact decimal precision (NUMERIC(15,2) in Postgres);
// it is serialized as a JSON string so precision survives the wire.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"userId"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    Currency          `json:"currency"`
	Status      TransactionStatus `json:"status"`
	Description *string           `json:"description,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// NewTransaction builds a fresh transaction row from a create request.
// Status always starts PENDING; it can change only through update.
func NewTransaction(userID uuid.UUID, req CreateTransactionRequest) Transaction {
	now := time.Now().UTC()
	return Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      StatusPending,
		Description: req.Description,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarshalJSON renders the amount with the full NUMERIC(15,2) scale so a
// create response and a later read of the same row serialize identically.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain(t), t.Amount.StringFixed(2)})
}

// Snapshot returns the transaction's business fields as a free-form map
// for use in audit change records. The amount keeps its two-digit scale so
// the snapshot compares field-wise equal against rows read back from the
// NUMERIC(15,2) column.
func (t Transaction) Snapshot() map[string]any {
	snap := map[string]any{
		"amount":   t.Amount.StringFixed(2),
		"currency": string(t.Currency),
		"status":   string(t.Status),
	}
	if t.Description != nil {
		snap["description"] = *t.Description
	}
	if t.Metadata != nil {
		snap["metadata"] = t.Metadata
	}
	return snap
}
