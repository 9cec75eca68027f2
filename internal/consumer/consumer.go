// Package consumer contains the audit service's JetStream pull consumers.
//
// The create consumer persists audit envelopes and publishes the
// acknowledgement the transaction service's saga is waiting on. The rollback
// consumer applies compensations. Both are durable, so messages published
// while the audit service is down are processed on restart.
//
// Idempotency: audit_logs carries a unique index on
// (correlation_id, action, entity_id). A redelivered envelope hits the
// duplicate path, which re-publishes the original acknowledgement instead of
// writing a second row. Structurally invalid messages are Term()'d so they
// are never redelivered; transient failures are Nak()'d for retry.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/meridianfi/ledger/internal/auditstore"
	"github.com/meridianfi/ledger/internal/model"
	"github.com/meridianfi/ledger/internal/stream"
)

const (
	durableCreate   = "audit-service-create"
	durableRollback = "audit-service-rollback"

	fetchBatch = 20
)

// Consumer runs the audit service's stream processing loops.
type Consumer struct {
	client *stream.Client
	db     *auditstore.DB
	logger *slog.Logger
}

// New creates a Consumer.
func New(client *stream.Client, db *auditstore.DB, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, db: db, logger: logger}
}

// Start creates the durable pull subscriptions and launches both processing
// loops in background goroutines. It returns immediately; the loops stop
// when ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	createSub, err := c.client.PullSubscribe(stream.SubjectAuditCreate, durableCreate)
	if err != nil {
		return err
	}
	rollbackSub, err := c.client.PullSubscribe(stream.SubjectAuditRollback, durableRollback)
	if err != nil {
		return err
	}

	c.logger.Info("audit consumers started",
		"create_durable", durableCreate, "rollback_durable", durableRollback)

	go c.loop(ctx, createSub, c.processCreate)
	go c.loop(ctx, rollbackSub, c.processRollback)
	return nil
}

func (c *Consumer) loop(ctx context.Context, sub *nats.Subscription, process func(context.Context, *nats.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msgs, err := sub.Fetch(fetchBatch, nats.Context(ctx))
			if err != nil {
				// Timeout on an empty queue is the normal idle path.
				continue
			}
			for _, msg := range msgs {
				process(ctx, msg)
			}
		}
	}
}

// processCreate persists one audit envelope and publishes the saga ack.
func (c *Consumer) processCreate(ctx context.Context, msg *nats.Msg) {
	var req model.CreateAuditLogRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.logger.Warn("terminating malformed create envelope", "error", err)
		_ = msg.Term()
		return
	}

	if err := req.Validate(); err != nil {
		// The envelope names its saga, so the saga can be failed fast
		// instead of waiting out its timeout.
		c.logger.Warn("rejecting invalid audit envelope",
			"correlation_id", req.CorrelationID, "error", err)
		if req.CorrelationID != "" {
			c.publishFailed(req.CorrelationID, err.Error())
		}
		_ = msg.Term()
		return
	}

	log, err := c.db.Insert(ctx, req)
	switch {
	case errors.Is(err, auditstore.ErrDuplicate):
		// Redelivery of an already-processed envelope. Recover the original
		// row and re-publish its ack; the first ack may have been lost.
		existing, getErr := c.db.GetBySagaKey(ctx, req.CorrelationID, req.Action, req.EntityID)
		if getErr != nil {
			c.logger.Error("duplicate envelope but original row missing",
				"correlation_id", req.CorrelationID, "error", getErr)
			_ = msg.Nak()
			return
		}
		c.publishCreated(existing)
		_ = msg.Ack()
		return

	case err != nil:
		c.logger.Error("insert audit log failed, requeueing",
			"correlation_id", req.CorrelationID, "error", err)
		_ = msg.Nak()
		return
	}

	if !c.publishCreated(log) {
		// The row is written but the ack did not go out. Nak so redelivery
		// takes the duplicate path and retries the ack.
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()

	c.logger.Debug("audit log written",
		"correlation_id", log.CorrelationID, "action", string(log.Action), "entity_id", log.EntityID)
}

// processRollback applies one compensation envelope.
func (c *Consumer) processRollback(ctx context.Context, msg *nats.Msg) {
	var rb stream.AuditRollback
	if err := json.Unmarshal(msg.Data, &rb); err != nil {
		c.logger.Warn("terminating malformed rollback envelope", "error", err)
		_ = msg.Term()
		return
	}
	if rb.CorrelationID == "" {
		c.logger.Warn("terminating rollback envelope without correlation id")
		_ = msg.Term()
		return
	}

	n, err := c.db.MarkRolledBack(ctx, rb.CorrelationID)
	if err != nil {
		c.logger.Error("mark rolled back failed, requeueing",
			"correlation_id", rb.CorrelationID, "error", err)
		_ = msg.Nak()
		return
	}

	if n == 0 {
		// Either the create envelope never arrived (pure timeout) or this is
		// a redelivered compensation. Both are safe to acknowledge.
		c.logger.Info("rollback had no rows to compensate", "correlation_id", rb.CorrelationID)
	} else {
		c.logger.Info("audit rows rolled back",
			"correlation_id", rb.CorrelationID, "rows", n, "reason", rb.Reason)
	}
	_ = msg.Ack()
}

func (c *Consumer) publishCreated(log model.AuditLog) bool {
	err := c.client.Publish(stream.SubjectAuditCreated, stream.AuditCreated{
		CorrelationID: log.CorrelationID,
		AuditLogID:    log.ID.String(),
		Success:       true,
	})
	if err != nil {
		c.logger.Error("publish created ack failed", "correlation_id", log.CorrelationID, "error", err)
		return false
	}
	return true
}

func (c *Consumer) publishFailed(correlationID, reason string) {
	err := c.client.Publish(stream.SubjectAuditFailed, stream.AuditFailed{
		CorrelationID: correlationID,
		Error:         reason,
	})
	if err != nil {
		c.logger.Error("publish failed ack failed", "correlation_id", correlationID, "error", err)
	}
}
