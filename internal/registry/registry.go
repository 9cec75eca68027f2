// Package registry implements the audit correlation registry: the bridge
// between a saga goroutine blocked mid-transaction and the asynchronous
// audit acknowledgement arriving on the stream.
//
// Two shared durable subscriptions (created and failed) serve every
// in-flight saga; each saga registers a one-shot waiter keyed by
// correlation ID before publishing its create envelope, which closes the
// window where an ack could arrive before anyone is listening.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/meridianfi/ledger/internal/stream"
)

const (
	durableCreated = "txn-service-created"
	durableFailed  = "txn-service-failed"
)

// waiter is a one-shot pending acknowledgement.
type waiter struct {
	ch    chan bool
	timer *time.Timer
}

// Registry tracks pending audit acknowledgements by correlation ID.
type Registry struct {
	client *stream.Client
	logger *slog.Logger

	mu      sync.Mutex
	waiters map[string]*waiter
	closed  bool

	subs []*nats.Subscription
}

// New creates a Registry. Call Start before registering waiters.
func New(client *stream.Client, logger *slog.Logger) *Registry {
	return &Registry{
		client:  client,
		logger:  logger,
		waiters: make(map[string]*waiter),
	}
}

// Start subscribes to the created and failed subjects. Acks resolve waiters;
// messages with no registered waiter are dropped, since their saga already
// timed out and rolled back.
func (r *Registry) Start() error {
	createdSub, err := r.client.Subscribe(stream.SubjectAuditCreated, durableCreated, func(msg *nats.Msg) {
		var ack stream.AuditCreated
		if err := json.Unmarshal(msg.Data, &ack); err != nil {
			r.logger.Warn("registry: malformed created ack, discarding", "error", err)
			_ = msg.Term()
			return
		}
		r.resolve(ack.CorrelationID, true)
		_ = msg.Ack()
	})
	if err != nil {
		return err
	}

	failedSub, err := r.client.Subscribe(stream.SubjectAuditFailed, durableFailed, func(msg *nats.Msg) {
		var nack stream.AuditFailed
		if err := json.Unmarshal(msg.Data, &nack); err != nil {
			r.logger.Warn("registry: malformed failed ack, discarding", "error", err)
			_ = msg.Term()
			return
		}
		r.logger.Warn("audit log creation failed", "correlation_id", nack.CorrelationID, "error", nack.Error)
		r.resolve(nack.CorrelationID, false)
		_ = msg.Ack()
	})
	if err != nil {
		_ = createdSub.Unsubscribe()
		return err
	}

	r.subs = []*nats.Subscription{createdSub, failedSub}
	return nil
}

// Register adds a waiter for correlationID and returns a channel that yields
// exactly one value: true if the audit log was persisted, false on failure
// or timeout. Must be called before the create envelope is published.
func (r *Registry) Register(correlationID string, timeout time.Duration) <-chan bool {
	ch := make(chan bool, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ch <- false
		return ch
	}

	w := &waiter{ch: ch}
	w.timer = time.AfterFunc(timeout, func() {
		r.resolve(correlationID, false)
	})
	r.waiters[correlationID] = w
	r.mu.Unlock()

	return ch
}

// Await blocks until the waiter resolves or ctx is cancelled. Cancellation
// counts as failure; the saga rolls back either way.
func (r *Registry) Await(ctx context.Context, ch <-chan bool) bool {
	select {
	case ok := <-ch:
		return ok
	case <-ctx.Done():
		return false
	}
}

// resolve delivers the outcome to the waiter and removes it. At most one of
// ack, nack, and timeout wins; the rest find the waiter gone.
func (r *Registry) resolve(correlationID string, ok bool) {
	r.mu.Lock()
	w, found := r.waiters[correlationID]
	if found {
		delete(r.waiters, correlationID)
	}
	r.mu.Unlock()

	if !found {
		return
	}
	w.timer.Stop()
	w.ch <- ok
}

// Pending returns the number of sagas currently awaiting acknowledgement.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// Close unsubscribes and resolves every outstanding waiter to false so
// blocked sagas roll back promptly during shutdown.
func (r *Registry) Close() {
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}

	r.mu.Lock()
	r.closed = true
	pending := r.waiters
	r.waiters = make(map[string]*waiter)
	r.mu.Unlock()

	for id, w := range pending {
		w.timer.Stop()
		w.ch <- false
		r.logger.Warn("registry: resolved pending saga as failed on shutdown", "correlation_id", id)
	}
}
