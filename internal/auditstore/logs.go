package auditstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridianfi/ledger/internal/model"
)

// ErrNotFound is returned when a requested audit log does not exist.
var ErrNotFound = errors.New("auditstore: not found")

// ErrDuplicate is returned by Insert when a row with the same
// (correlation_id, action, entity_id) already exists. The consumer treats
// this as a redelivered envelope and acknowledges without writing.
var ErrDuplicate = errors.New("auditstore: duplicate audit log")

const auditColumns = `id, action, entity_type, entity_id, user_id, status, metadata, changes,
	ip_address, user_agent, correlation_id, service_name, created_at`

// Insert writes an audit log row from a validated envelope and returns the
// stored row. A second envelope with the same saga key returns ErrDuplicate.
func (db *DB) Insert(ctx context.Context, req model.CreateAuditLogRequest) (model.AuditLog, error) {
	log := model.AuditLog{
		ID:            uuid.New(),
		Action:        req.Action,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		UserID:        req.UserID,
		Status:        req.Status,
		Metadata:      req.Metadata,
		Changes:       req.Changes,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		CorrelationID: req.CorrelationID,
		ServiceName:   req.ServiceName,
		CreatedAt:     time.Now().UTC(),
	}
	if log.Status == "" {
		log.Status = model.AuditSuccess
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, status, metadata, changes,
		                         ip_address, user_agent, correlation_id, service_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		log.ID, string(log.Action), log.EntityType, log.EntityID, log.UserID, string(log.Status),
		log.Metadata, log.Changes, log.IPAddress, log.UserAgent,
		log.CorrelationID, log.ServiceName, log.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.AuditLog{}, ErrDuplicate
		}
		return model.AuditLog{}, fmt.Errorf("auditstore: insert audit log: %w", err)
	}
	return log, nil
}

// MarkRolledBack transitions every row for the correlation ID to ROLLED_BACK
// and returns the number of rows changed. Re-applying to already rolled-back
// rows changes nothing, so redelivered compensation messages are harmless.
func (db *DB) MarkRolledBack(ctx context.Context, correlationID string) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE audit_logs SET status = $1
		 WHERE correlation_id = $2 AND status <> $1`,
		string(model.AuditRolledBack), correlationID,
	)
	if err != nil {
		return 0, fmt.Errorf("auditstore: mark rolled back: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetBySagaKey retrieves the row for a (correlation_id, action, entity_id)
// triple. Used by the consumer to recover the original row on duplicate
// delivery so it can re-publish the same acknowledgement.
func (db *DB) GetBySagaKey(ctx context.Context, correlationID string, action model.AuditAction, entityID string) (model.AuditLog, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+auditColumns+` FROM audit_logs
		 WHERE correlation_id = $1 AND action = $2 AND entity_id = $3`,
		correlationID, string(action), entityID)
	return scanAuditRow(row)
}

// GetByID retrieves a single audit log.
func (db *DB) GetByID(ctx context.Context, id uuid.UUID) (model.AuditLog, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id)
	return scanAuditRow(row)
}

// GetByCorrelation returns every audit log for a correlation ID in
// chronological order, reconstructing the saga's history.
func (db *DB) GetByCorrelation(ctx context.Context, correlationID string) ([]model.AuditLog, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+auditColumns+` FROM audit_logs
		 WHERE correlation_id = $1 ORDER BY created_at ASC`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("auditstore: get by correlation: %w", err)
	}
	return collectAuditRows(rows)
}

// GetByEntity returns the audit history for one entity, newest first.
func (db *DB) GetByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditLog, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+auditColumns+` FROM audit_logs
		 WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("auditstore: get by entity: %w", err)
	}
	return collectAuditRows(rows)
}

// List returns audit logs matching the filter, paged and sorted by created_at,
// along with the total match count.
func (db *DB) List(ctx context.Context, f model.AuditLogFilter) ([]model.AuditLog, int64, error) {
	f.Normalize()
	if f.SortOrder != model.SortAsc {
		f.SortOrder = model.SortDesc
	}

	where, args := buildAuditWhere(f)

	var total int64
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("auditstore: count audit logs: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM audit_logs%s ORDER BY created_at %s LIMIT %d OFFSET %d`,
		auditColumns, where, f.SortOrder, f.Limit, f.Offset(),
	)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("auditstore: list audit logs: %w", err)
	}
	logs, err := collectAuditRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func buildAuditWhere(f model.AuditLogFilter) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.Action != nil {
		add("action = $%d", string(*f.Action))
	}
	if f.EntityType != nil {
		add("entity_type = $%d", *f.EntityType)
	}
	if f.EntityID != nil {
		add("entity_id = $%d", *f.EntityID)
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.CorrelationID != nil {
		add("correlation_id = $%d", *f.CorrelationID)
	}
	if f.ServiceName != nil {
		add("service_name = $%d", *f.ServiceName)
	}
	if f.StartDate != nil {
		add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= $%d", *f.EndDate)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func collectAuditRows(rows pgx.Rows) ([]model.AuditLog, error) {
	defer rows.Close()
	var out []model.AuditLog
	for rows.Next() {
		log, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditRow(row rowScanner) (model.AuditLog, error) {
	var (
		log    model.AuditLog
		action string
		status string
	)
	err := row.Scan(
		&log.ID, &action, &log.EntityType, &log.EntityID, &log.UserID, &status,
		&log.Metadata, &log.Changes, &log.IPAddress, &log.UserAgent,
		&log.CorrelationID, &log.ServiceName, &log.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AuditLog{}, ErrNotFound
	}
	if err != nil {
		return model.AuditLog{}, fmt.Errorf("auditstore: scan audit log: %w", err)
	}
	log.Action = model.AuditAction(action)
	log.Status = model.AuditStatus(status)
	log.CreatedAt = log.CreatedAt.UTC()
	return log, nil
}
