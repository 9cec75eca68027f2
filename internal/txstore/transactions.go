package txstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridianfi/ledger/internal/model"
)

const transactionColumns = `id, user_id, amount::text, currency, status, description, metadata, created_at, updated_at`

// Session is an open database transaction held for the duration of a saga.
// The row change becomes durably visible only when Commit is called after
// the remote audit acknowledgement arrives.
type Session struct {
	tx pgx.Tx
}

// Begin opens a saga transaction. The caller must Commit or Rollback;
// Rollback after Commit is a no-op.
func (db *DB) Begin(ctx context.Context) (*Session, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("txstore: begin: %w", err)
	}
	return &Session{tx: tx}, nil
}

// Commit makes the saga's row change durable.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("txstore: commit: %w", err)
	}
	return nil
}

// Rollback discards the saga's row change.
func (s *Session) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("txstore: rollback: %w", err)
	}
	return nil
}

// Insert adds a transaction row inside the saga transaction.
func (s *Session) Insert(ctx context.Context, t model.Transaction) error {
	_, err := s.tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, amount, currency, status, description, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.Amount.StringFixed(2), string(t.Currency), string(t.Status),
		t.Description, t.Metadata, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("txstore: insert transaction: %w", err)
	}
	return nil
}

// GetForUpdate loads a transaction owned by userID with a row lock, so two
// concurrent sagas on the same row serialize at the database. Returns
// ErrNotFound when the row is absent or owned by a different user.
func (s *Session) GetForUpdate(ctx context.Context, id, userID uuid.UUID) (model.Transaction, error) {
	row := s.tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
	return scanTransactionRow(row)
}

// Update rewrites the mutable columns of a transaction inside the saga transaction.
func (s *Session) Update(ctx context.Context, t model.Transaction) error {
	tag, err := s.tx.Exec(ctx,
		`UPDATE transactions
		 SET amount = $1, currency = $2, status = $3, description = $4, metadata = $5, updated_at = $6
		 WHERE id = $7 AND user_id = $8`,
		t.Amount.StringFixed(2), string(t.Currency), string(t.Status),
		t.Description, t.Metadata, t.UpdatedAt, t.ID, t.UserID,
	)
	if err != nil {
		return fmt.Errorf("txstore: update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a transaction inside the saga transaction. Returns
// ErrNotFound when no row matched both id and owner.
func (s *Session) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := s.tx.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("txstore: delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTransaction retrieves a committed transaction scoped to its owner.
// Absent rows and rows owned by another user both return ErrNotFound.
func (db *DB) GetTransaction(ctx context.Context, id, userID uuid.UUID) (model.Transaction, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE id = $1 AND user_id = $2`, id, userID)
	return scanTransactionRow(row)
}

// ListTransactions returns the owner's transactions matching the filter,
// paged and sorted, along with the total match count.
func (db *DB) ListTransactions(ctx context.Context, userID uuid.UUID, f model.TransactionFilter) ([]model.Transaction, int64, error) {
	f.Normalize()
	f.NormalizeSort()

	where, args := buildTransactionWhere(userID, f)

	var total int64
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("txstore: count transactions: %w", err)
	}

	orderBy := map[string]string{
		"createdAt": "created_at",
		"updatedAt": "updated_at",
		"amount":    "amount",
	}[f.SortBy]

	query := fmt.Sprintf(
		`SELECT %s FROM transactions%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		transactionColumns, where, orderBy, f.SortOrder, f.Limit, f.Offset(),
	)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("txstore: list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func buildTransactionWhere(userID uuid.UUID, f model.TransactionFilter) (string, []any) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}
	idx := 2

	if f.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(*f.Status))
		idx++
	}
	if f.Currency != nil {
		conditions = append(conditions, fmt.Sprintf("currency = $%d", idx))
		args = append(args, string(*f.Currency))
		idx++
	}
	if f.MinAmount != nil {
		conditions = append(conditions, fmt.Sprintf("amount >= $%d", idx))
		args = append(args, f.MinAmount.StringFixed(2))
		idx++
	}
	if f.MaxAmount != nil {
		conditions = append(conditions, fmt.Sprintf("amount <= $%d", idx))
		args = append(args, f.MaxAmount.StringFixed(2))
		idx++
	}
	if f.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *f.StartDate)
		idx++
	}
	if f.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, *f.EndDate)
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransactionRow(row rowScanner) (model.Transaction, error) {
	var (
		t         model.Transaction
		amountStr string
		currency  string
		status    string
	)
	err := row.Scan(
		&t.ID, &t.UserID, &amountStr, &currency, &status,
		&t.Description, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Transaction{}, ErrNotFound
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("txstore: scan transaction: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("txstore: parse amount %q: %w", amountStr, err)
	}
	t.Amount = amount
	t.Currency = model.Currency(currency)
	t.Status = model.TransactionStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
