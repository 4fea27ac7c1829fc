package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	appErr := NotFound("job not found")
	assert.Equal(t, "job not found", appErr.Error())

	cause := errors.New("row missing")
	wrapped := Wrap(cause, ErrCodeNotFound, "job not found")
	assert.Equal(t, "job not found: row missing", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "boom"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "boom %d", 1))
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{NotFoundf("job %s", "abc"), IsNotFound},
		{Conflict("duplicate"), IsConflict},
		{Validation("bad url"), IsValidation},
		{ValidationField("url", "bad url"), IsValidation},
		{Internal("boom"), IsInternal},
		{EmptySelection("no items matched"), IsEmptySelection},
	}
	for _, tc := range tests {
		assert.True(t, tc.check(tc.err), "%v", tc.err)
		assert.True(t, tc.check(fmt.Errorf("outer: %w", tc.err)), "wrapped %v", tc.err)
	}
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestGetCodeAndField(t *testing.T) {
	err := ValidationField("quality", "unsupported quality")
	assert.Equal(t, ErrCodeValidation, GetCode(err))
	assert.Equal(t, "quality", GetField(err))

	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Equal(t, "", GetField(errors.New("plain")))
}

func TestNonRetryable(t *testing.T) {
	require.Nil(t, NonRetryable(nil))

	base := errors.New("codec mismatch")
	marked := NonRetryable(base)
	assert.True(t, IsNonRetryable(marked))
	assert.True(t, IsNonRetryable(fmt.Errorf("outer: %w", marked)))
	assert.ErrorIs(t, marked, base)
	assert.Equal(t, base.Error(), marked.Error())

	assert.False(t, IsNonRetryable(errors.New("transient")))
	assert.False(t, IsNonRetryable(nil))
}

func TestValidationErrorsAreNonRetryable(t *testing.T) {
	assert.True(t, IsNonRetryable(Validation("bad payload")))
	assert.True(t, IsNonRetryable(EmptySelection("no items")))
	assert.False(t, IsNonRetryable(Internal("db down")))
}
