package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/ledger/internal/apperr"
)

func TestVariantMapping(t *testing.T) {
	cases := []struct {
		err    *apperr.Error
		code   string
		status int
	}{
		{apperr.Validation("bad input"), "VALIDATION_ERROR", http.StatusBadRequest},
		{apperr.Unauthorized("no token"), "UNAUTHORIZED", http.StatusUnauthorized},
		{apperr.NotFound("transaction not found"), "NOT_FOUND", http.StatusNotFound},
		{apperr.Conflict("username already exists"), "CONFLICT", http.StatusConflict},
		{apperr.RateLimited("too many requests"), "RATE_LIMITED", http.StatusTooManyRequests},
		{apperr.DistributedTransaction("ack timeout", nil), "DISTRIBUTED_TRANSACTION_ERROR", http.StatusInternalServerError},
		{apperr.Database("insert failed", errors.New("boom")), "DATABASE_ERROR", http.StatusInternalServerError},
		{apperr.Internal("oops", nil), "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code())
		assert.Equal(t, tc.status, tc.err.HTTPStatus())
	}
}

func TestDistributedTransactionMessage(t *testing.T) {
	err := apperr.DistributedTransaction("audit ack timed out after 10s", nil)
	assert.Contains(t, err.Error(), "Audit log creation failed or timed out")
	assert.Contains(t, err.Error(), "audit ack timed out after 10s")
}

func TestFromPassthroughAndWrap(t *testing.T) {
	orig := apperr.NotFound("gone")
	assert.Same(t, orig, apperr.From(orig))
	assert.Same(t, orig, apperr.From(fmt.Errorf("layered: %w", orig)))

	wrapped := apperr.From(errors.New("surprise"))
	assert.Equal(t, apperr.KindInternal, wrapped.Kind)
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := apperr.Database("query failed", cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("ctx: %w", apperr.Conflict("dup"))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.False(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.False(t, apperr.IsKind(errors.New("plain"), apperr.KindConflict))
}
