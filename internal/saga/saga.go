// Package saga coordinates transaction mutations with the audit service.
//
// Every create, update, and delete runs as a choreographed saga: the local
// database transaction stays open while the audit service persists its log
// entry, and commits only after the acknowledgement arrives. The waiter is
// always registered before the envelope is published so an ack can never
// arrive unobserved.
package saga

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfi/ledger/internal/apperr"
	"github.com/meridianfi/ledger/internal/model"
	"github.com/meridianfi/ledger/internal/stream"
)

// Tx is the slice of the storage session the saga drives.
type Tx interface {
	Insert(ctx context.Context, t model.Transaction) error
	GetForUpdate(ctx context.Context, id, userID uuid.UUID) (model.Transaction, error)
	Update(ctx context.Context, t model.Transaction) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens saga transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Publisher publishes JSON envelopes to the stream.
type Publisher interface {
	Publish(subject string, v any) error
}

// Waiter registers and awaits audit acknowledgements by correlation ID.
type Waiter interface {
	Register(correlationID string, timeout time.Duration) <-chan bool
	Await(ctx context.Context, ch <-chan bool) bool
}

// IsNotFound lets the saga translate store sentinel errors without importing
// the store package.
type IsNotFound func(error) bool

// RequestMeta carries client attribution copied onto audit envelopes.
type RequestMeta struct {
	IPAddress *string
	UserAgent *string
}

// Coordinator runs transaction sagas.
type Coordinator struct {
	store       Store
	publisher   Publisher
	waiter      Waiter
	notFound    IsNotFound
	serviceName string
	ackTimeout  time.Duration
	logger      *slog.Logger
}

// New creates a Coordinator.
func New(store Store, publisher Publisher, waiter Waiter, notFound IsNotFound,
	serviceName string, ackTimeout time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		publisher:   publisher,
		waiter:      waiter,
		notFound:    notFound,
		serviceName: serviceName,
		ackTimeout:  ackTimeout,
		logger:      logger,
	}
}

// Create inserts a new transaction. The row starts PENDING regardless of
// input; status changes only through Update.
func (c *Coordinator) Create(ctx context.Context, userID uuid.UUID, req model.CreateTransactionRequest, meta RequestMeta) (model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return model.Transaction{}, apperr.Validation(err.Error())
	}

	t := model.NewTransaction(userID, req)

	err := c.run(ctx, userID, meta, model.ActionCreate, t.ID.String(),
		&model.Changes{After: t.Snapshot()},
		func(ctx context.Context, tx Tx) error {
			return tx.Insert(ctx, t)
		})
	if err != nil {
		return model.Transaction{}, err
	}
	return t, nil
}

// Update applies a partial patch to an existing transaction.
func (c *Coordinator) Update(ctx context.Context, userID, id uuid.UUID, req model.UpdateTransactionRequest, meta RequestMeta) (model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return model.Transaction{}, apperr.Validation(err.Error())
	}

	var updated model.Transaction
	var changes model.Changes

	err := c.runLocked(ctx, userID, id, meta, model.ActionUpdate, &changes,
		func(ctx context.Context, tx Tx, current model.Transaction) error {
			changes.Before = current.Snapshot()
			updated = req.Apply(current)
			updated.UpdatedAt = time.Now().UTC()
			changes.After = updated.Snapshot()
			return tx.Update(ctx, updated)
		})
	if err != nil {
		return model.Transaction{}, err
	}
	return updated, nil
}

// Delete removes a transaction.
func (c *Coordinator) Delete(ctx context.Context, userID, id uuid.UUID, meta RequestMeta) error {
	var changes model.Changes
	return c.runLocked(ctx, userID, id, meta, model.ActionDelete, &changes,
		func(ctx context.Context, tx Tx, current model.Transaction) error {
			changes.Before = current.Snapshot()
			return tx.Delete(ctx, id, userID)
		})
}

// runLocked loads the row under a lock, applies mutate, then drives the
// shared saga tail. Missing rows fail before anything is published.
func (c *Coordinator) runLocked(ctx context.Context, userID, id uuid.UUID, meta RequestMeta,
	action model.AuditAction, changes *model.Changes,
	mutate func(context.Context, Tx, model.Transaction) error) error {

	return c.run(ctx, userID, meta, action, id.String(), changes,
		func(ctx context.Context, tx Tx) error {
			current, err := tx.GetForUpdate(ctx, id, userID)
			if err != nil {
				if c.notFound(err) {
					return apperr.NotFound("transaction not found")
				}
				return apperr.Database("load transaction", err)
			}
			return mutate(ctx, tx, current)
		})
}

// run executes the saga skeleton: begin, mutate, register waiter, publish,
// await, then commit or roll back. On failure the local change is discarded
// and a compensation envelope is published, since at-least-once delivery
// means the audit row may exist even when no ack arrived.
func (c *Coordinator) run(ctx context.Context, userID uuid.UUID, meta RequestMeta,
	action model.AuditAction, entityID string, changes *model.Changes,
	mutate func(context.Context, Tx) error) error {

	correlationID := uuid.NewString()
	logger := c.logger.With("correlation_id", correlationID, "action", string(action), "entity_id", entityID)

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return apperr.Database("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.Error("local rollback failed", "error", rbErr)
			}
		}
	}()

	if err := mutate(ctx, tx); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return err
		}
		return apperr.Database("apply transaction change", err)
	}

	uid := userID.String()
	envelope := model.CreateAuditLogRequest{
		Action:        action,
		EntityType:    "Transaction",
		EntityID:      entityID,
		UserID:        &uid,
		Status:        model.AuditSuccess,
		Metadata:      summarize(changes),
		Changes:       changes,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		CorrelationID: correlationID,
		ServiceName:   c.serviceName,
	}

	// Register before publish: the ack may arrive faster than this goroutine
	// returns from Publish.
	ch := c.waiter.Register(correlationID, c.ackTimeout)

	if err := c.publisher.Publish(stream.SubjectAuditCreate, envelope); err != nil {
		logger.Error("publish audit envelope failed", "error", err)
		return apperr.DistributedTransaction("could not reach audit stream", err)
	}

	if !c.waiter.Await(ctx, ch) {
		logger.Warn("audit ack missing, rolling back")
		c.compensate(logger, correlationID, "audit acknowledgement missing or negative")
		return apperr.DistributedTransaction("no acknowledgement within "+c.ackTimeout.String(), nil)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("local commit failed after audit ack", "error", err)
		c.compensate(logger, correlationID, "local commit failed")
		return apperr.Database("commit transaction", err)
	}
	committed = true

	logger.Info("saga committed")
	return nil
}

// summarize extracts the amount, currency, and status of the affected row
// for the envelope's metadata, preferring the post-change state. Deletes
// carry only a before-state, so the summary falls back to it.
func summarize(changes *model.Changes) map[string]any {
	snap := changes.After
	if snap == nil {
		snap = changes.Before
	}
	if snap == nil {
		return nil
	}
	summary := make(map[string]any, 3)
	for _, k := range []string{"amount", "currency", "status"} {
		if v, ok := snap[k]; ok {
			summary[k] = v
		}
	}
	return summary
}

// compensate publishes the rollback envelope. If even that fails the orphaned
// audit row stays until someone reconciles it by correlation ID.
func (c *Coordinator) compensate(logger *slog.Logger, correlationID, reason string) {
	err := c.publisher.Publish(stream.SubjectAuditRollback, stream.AuditRollback{
		CorrelationID: correlationID,
		Reason:        reason,
	})
	if err != nil {
		logger.Warn("compensation publish failed, audit rows may be orphaned",
			"correlation_id", correlationID, "error", err)
	}
}
