package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := Wrap(KindConflict, "duplicate", errors.New("23505"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("register: %w", err)
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestMessageOfHidesForeignErrors(t *testing.T) {
	assert.Equal(t, "internal error", MessageOf(errors.New("pq: connection refused")))
	assert.Equal(t, "internal error", MessageOf(Wrap(KindInternal, "db down", errors.New("timeout"))))
	assert.Equal(t, "email already verified", MessageOf(ErrAlreadyVerified))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindInternal, "store failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "invalid_credentials", KindInvalidCredentials.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
