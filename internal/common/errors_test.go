package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserError(t *testing.T) {
	underlying := errors.New("sql: no rows")
	err := NewUserError("no pending transaction abc", underlying)

	assert.Equal(t, "no pending transaction abc: sql: no rows", err.Error())
	assert.ErrorIs(t, err, underlying)

	var userErr *UserError
	assert.ErrorAs(t, err, &userErr)
	assert.Equal(t, "no pending transaction abc", userErr.UserMessage)
}

func TestUserErrorWithoutCause(t *testing.T) {
	err := NewUserError("invalid type: foo", nil)
	assert.Equal(t, "invalid type: foo", err.Error())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "rate limit",
			err:  fmt.Errorf("listing messages: %w", ErrRateLimit),
			want: true,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: true,
		},
		{
			name: "explicitly retryable",
			err:  &RetryableError{Err: errors.New("connection reset"), Retryable: true},
			want: true,
		},
		{
			name: "explicitly not retryable",
			err:  &RetryableError{Err: errors.New("bad credentials"), Retryable: false},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
