package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/ledger/internal/registry"
	"github.com/meridianfi/ledger/internal/stream"
	"github.com/meridianfi/ledger/internal/testutil"
)

func newTestRegistry(t *testing.T) (*registry.Registry, *stream.Client) {
	t.Helper()

	ns := testutil.MustStartNATS(t)
	t.Cleanup(ns.Shutdown)

	client, err := stream.Connect(ns.URL, 50*time.Millisecond, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.EnsureStream())

	reg := registry.New(client, testutil.TestLogger())
	require.NoError(t, reg.Start())
	t.Cleanup(reg.Close)
	return reg, client
}

func TestAckResolvesWaiterTrue(t *testing.T) {
	reg, client := newTestRegistry(t)

	correlationID := uuid.NewString()
	ch := reg.Register(correlationID, 5*time.Second)

	err := client.Publish(stream.SubjectAuditCreated, stream.AuditCreated{
		CorrelationID: correlationID,
		AuditLogID:    uuid.NewString(),
		Success:       true,
	})
	require.NoError(t, err)

	assert.True(t, reg.Await(context.Background(), ch))
	assert.Equal(t, 0, reg.Pending())
}

func TestFailedResolvesWaiterFalse(t *testing.T) {
	reg, client := newTestRegistry(t)

	correlationID := uuid.NewString()
	ch := reg.Register(correlationID, 5*time.Second)

	err := client.Publish(stream.SubjectAuditFailed, stream.AuditFailed{
		CorrelationID: correlationID,
		Error:         "constraint violation",
	})
	require.NoError(t, err)

	assert.False(t, reg.Await(context.Background(), ch))
}

func TestTimeoutResolvesWaiterFalse(t *testing.T) {
	reg, _ := newTestRegistry(t)

	ch := reg.Register(uuid.NewString(), 50*time.Millisecond)

	start := time.Now()
	assert.False(t, reg.Await(context.Background(), ch))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, reg.Pending())
}

func TestAckForUnknownCorrelationIsDropped(t *testing.T) {
	reg, client := newTestRegistry(t)

	err := client.Publish(stream.SubjectAuditCreated, stream.AuditCreated{
		CorrelationID: uuid.NewString(),
		Success:       true,
	})
	require.NoError(t, err)

	// An unrelated waiter must not be resolved by it.
	ch := reg.Register(uuid.NewString(), 200*time.Millisecond)
	assert.False(t, reg.Await(context.Background(), ch))
}

func TestLateAckAfterTimeoutIsDropped(t *testing.T) {
	reg, client := newTestRegistry(t)

	correlationID := uuid.NewString()
	ch := reg.Register(correlationID, 20*time.Millisecond)
	assert.False(t, reg.Await(context.Background(), ch))

	// The ack arrives after the saga already gave up. Nothing to resolve.
	err := client.Publish(stream.SubjectAuditCreated, stream.AuditCreated{
		CorrelationID: correlationID,
		Success:       true,
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, reg.Pending())
}

func TestConcurrentWaiters(t *testing.T) {
	reg, client := newTestRegistry(t)

	const n = 20
	type result struct {
		id string
		ok bool
	}
	results := make(chan result, n)

	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
		ch := reg.Register(ids[i], 5*time.Second)
		go func(id string, ch <-chan bool) {
			results <- result{id: id, ok: reg.Await(context.Background(), ch)}
		}(ids[i], ch)
	}

	// Resolve even indexes as created, odd as failed.
	for i, id := range ids {
		if i%2 == 0 {
			require.NoError(t, client.Publish(stream.SubjectAuditCreated, stream.AuditCreated{
				CorrelationID: id, Success: true,
			}))
		} else {
			require.NoError(t, client.Publish(stream.SubjectAuditFailed, stream.AuditFailed{
				CorrelationID: id, Error: "boom",
			}))
		}
	}

	outcomes := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		select {
		case res := <-results:
			outcomes[res.id] = res.ok
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for saga outcomes")
		}
	}

	for i, id := range ids {
		assert.Equal(t, i%2 == 0, outcomes[id], "correlation %d", i)
	}
}

func TestCloseResolvesAllPendingFalse(t *testing.T) {
	ns := testutil.MustStartNATS(t)
	t.Cleanup(ns.Shutdown)

	client, err := stream.Connect(ns.URL, 50*time.Millisecond, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.EnsureStream())

	reg := registry.New(client, testutil.TestLogger())
	require.NoError(t, reg.Start())

	ch1 := reg.Register(uuid.NewString(), time.Minute)
	ch2 := reg.Register(uuid.NewString(), time.Minute)

	reg.Close()

	assert.False(t, <-ch1)
	assert.False(t, <-ch2)

	// Registering after close resolves immediately.
	ch3 := reg.Register(uuid.NewString(), time.Minute)
	assert.False(t, <-ch3)
}

func TestContextCancellationCountsAsFailure(t *testing.T) {
	reg, _ := newTestRegistry(t)

	ch := reg.Register(uuid.NewString(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, reg.Await(ctx, ch))
}
