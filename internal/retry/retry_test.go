package retry

import (
	"context"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferdesk/internal/errors"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		BackoffFactor:   2,
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(errors.New(errors.KindNetwork, errors.SeverityMedium, "NET", "net")))
	assert.False(t, IsRetryableError(errors.ErrTransactionReverted))
	assert.False(t, IsRetryableError(stderrors.New("execution reverted")))
}

func TestExecute_RetriesNetworkErrors(t *testing.T) {
	r := NewRetrier(fastConfig(), quietLogger())

	calls := 0
	err := r.Execute(context.Background(), "read", func() error {
		calls++
		if calls < 3 {
			return stderrors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_StopsOnNonRetryable(t *testing.T) {
	r := NewRetrier(fastConfig(), quietLogger())

	calls := 0
	err := r.Execute(context.Background(), "read", func() error {
		calls++
		return errors.ErrWalletNotInjected
	})

	assert.ErrorIs(t, err, errors.ErrWalletNotInjected)
	assert.Equal(t, 1, calls)
}

func TestExecute_ExhaustedKeepsKind(t *testing.T) {
	r := NewRetrier(fastConfig(), quietLogger())

	calls := 0
	err := r.Execute(context.Background(), "read", func() error {
		calls++
		return context.DeadlineExceeded
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
}

func TestExecute_ContextCanceled(t *testing.T) {
	r := NewRetrier(fastConfig(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.Execute(ctx, "read", func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDo(t *testing.T) {
	r := NewRetrier(NoRetryConfig, quietLogger())

	v, err := Do(context.Background(), r, "count", func() (uint64, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	_, err = Do(context.Background(), r, "count", func() (uint64, error) { return 0, io.ErrUnexpectedEOF })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCalculateDelay(t *testing.T) {
	r := NewRetrier(&RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     300 * time.Millisecond,
		BackoffFactor:   2,
	}, quietLogger())

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(3))
}
