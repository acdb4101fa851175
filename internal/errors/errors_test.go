package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncErrorIs(t *testing.T) {
	err := WrapUnreachable("fetch_config", "http://gw/api/config", errors.New("connection refused"))

	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.False(t, errors.Is(err, ErrMalformedConfig))
	assert.True(t, IsUnreachable(fmt.Errorf("poll: %w", err)))
	assert.False(t, IsMalformed(err))
	assert.Equal(t, "fetch_config failed on http://gw/api/config: connection refused", err.Error())
}

func TestSyncErrorUnwrapsUnderlying(t *testing.T) {
	cause := errors.New("yaml: line 2")
	err := WrapMalformed("decode_config", "", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsMalformed(err))
	assert.Equal(t, "decode_config failed: yaml: line 2", err.Error())
	assert.Equal(t, ErrorTypeMalformed, TypeOf(err))
}

func TestWithStatusCodeRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{code: 500, want: true},
		{code: 503, want: true},
		{code: 429, want: true},
		{code: 404, want: false},
		{code: 401, want: false},
	}
	for _, tt := range tests {
		err := WrapUnreachable("fetch_config", "", errors.New("status")).WithStatusCode(tt.code)
		assert.Equal(t, tt.want, IsRetryableError(err), "status %d", tt.code)
		assert.Equal(t, tt.code, err.StatusCode)
	}
}

func TestTypeOfForeignError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("boom")))
	assert.False(t, IsRetryableError(errors.New("boom")))
	assert.True(t, IsRetryableError(fmt.Errorf("wrapped: %w", ErrTimeout)))
}
