package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		match  bool
	}{
		{
			name:   "not found error matches sentinel",
			err:    NewNotFoundError("fabric", "f1"),
			target: ErrNotFound,
			match:  true,
		},
		{
			name:   "validation error matches invalid input",
			err:    NewValidationError("name", nil, "missing"),
			target: ErrInvalidInput,
			match:  true,
		},
		{
			name:   "repository error matches unavailable",
			err:    NewRepositoryError("pull", "origin", "", errors.New("dial tcp: timeout")),
			target: ErrRepositoryUnavailable,
			match:  true,
		},
		{
			name:   "permanent cluster error matches rejection",
			err:    NewClusterError("apply", "vpc/prod", 422, "unknown field", false),
			target: ErrClusterRejected,
			match:  true,
		},
		{
			name:   "throttled cluster error matches rate limited",
			err:    NewClusterError("fetch", "", 429, "too many requests", true),
			target: ErrRateLimited,
			match:  true,
		},
		{
			name:   "transient cluster error is not a rejection",
			err:    NewClusterError("apply", "vpc/prod", 503, "unavailable", true),
			target: ErrClusterRejected,
			match:  false,
		},
		{
			name:   "conflict error matches unresolved sentinel",
			err:    NewConflictError("f1", "vpc/prod", "c-1", "concurrent_modification"),
			target: ErrConflictUnresolved,
			match:  true,
		},
		{
			name:   "transition error matches illegal transition",
			err:    &TransitionError{Resource: "vpc/prod", From: "draft", To: "synced"},
			target: ErrIllegalTransition,
			match:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, errors.Is(tt.err, tt.target))
		})
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	base := errors.New("connection reset")
	err := NewRepositoryError("push", "https://git.example.com/fabrics.git", "", base)

	assert.True(t, errors.Is(err, base))
	assert.True(t, IsRepositoryUnavailable(err))

	wrapped := fmt.Errorf("commit phase: %w", err)
	assert.True(t, IsRepositoryUnavailable(wrapped))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewClusterError("fetch", "", 0, "timeout", true)))
	assert.True(t, IsTransient(ErrRateLimited))
	assert.True(t, IsTransient(ErrTimeout))
	assert.False(t, IsTransient(NewClusterError("apply", "vpc/prod", 400, "bad spec", false)))
	assert.False(t, IsTransient(ErrNotFound))
}

func TestWrapHelpersPassNil(t *testing.T) {
	assert.NoError(t, WrapIO("read", "/tmp/x", nil))
	assert.NoError(t, WrapParse("yaml", "a.yaml", nil))
	assert.NoError(t, WrapValidation("kind", nil))
}
