package errors_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"unauthorized", apperrors.NewStatusError(http.StatusUnauthorized, ""), apperrors.KindUnauthorized},
		{"wrapped unauthorized", fmt.Errorf("refresh: %w", apperrors.NewStatusError(401, "expired")), apperrors.KindUnauthorized},
		{"server error", apperrors.NewStatusError(http.StatusInternalServerError, ""), apperrors.KindRetryable},
		{"bad gateway", apperrors.NewStatusError(http.StatusBadGateway, ""), apperrors.KindRetryable},
		{"bad request", apperrors.NewStatusError(http.StatusBadRequest, "invalid email"), apperrors.KindTerminal},
		{"forbidden", apperrors.NewStatusError(http.StatusForbidden, ""), apperrors.KindTerminal},
		{"statusless", fmt.Errorf("dial tcp: connection refused"), apperrors.KindRetryable},
		{"offline", apperrors.ErrOffline, apperrors.KindOffline},
		{"cancelled", context.Canceled, apperrors.KindTerminal},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), apperrors.KindTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.Classify(tt.err), tt.want.String())
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := apperrors.NewStatusError(http.StatusServiceUnavailable, "")
	assert.Equal(t, "request failed with status 503: Service Unavailable", err.Error())

	status, ok := apperrors.Status(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	_, ok = apperrors.Status(apperrors.ErrOffline)
	assert.False(t, ok)
}

func TestWrapf(t *testing.T) {
	assert.NoError(t, apperrors.Wrapf(nil, "noop"))

	err := apperrors.Wrapf(apperrors.ErrQueueFull, "enqueue %s", "abc")
	assert.EqualError(t, err, "enqueue abc: pending write queue is full")
	assert.True(t, apperrors.Is(err, apperrors.ErrQueueFull))
}

func TestLocalErrorsAreTerminal(t *testing.T) {
	for _, err := range []error{apperrors.ErrNotAuthenticated, apperrors.ErrNoRefreshToken, apperrors.ErrQueueFull, apperrors.ErrInvalidResponse} {
		assert.Equal(t, apperrors.KindTerminal, apperrors.Classify(fmt.Errorf("op: %w", err)), err.Error())
	}
}
