package videocore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelvision/sentinel-go/internal/errors"
)

func TestRetryPolicySucceedsFirstTry(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{MaxAttempts: 3}
	attempts := 0
	err := policy.Do(context.Background(), nil, func(attempt int) error {
		attempts = attempt
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{MaxAttempts: 3}
	attempts := 0
	wantErr := fmt.Errorf("still failing")
	err := policy.Do(context.Background(), nil, func(attempt int) error {
		attempts++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyStopsOnTerminalError(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{
		MaxAttempts: 5,
		IsTerminal: func(err error) bool {
			return errors.Is(err, ErrPermissionDenied)
		},
	}
	attempts := 0
	err := policy.Do(context.Background(), nil, func(attempt int) error {
		attempts++
		return ErrPermissionDenied
	})
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyDelaySchedule(t *testing.T) {
	t.Parallel()

	policy := EnumerationRetryPolicy(3, 500*time.Millisecond, time.Second)
	assert.Equal(t, 3, policy.MaxAttempts)
	// First wait 500ms, then 1s; the last entry repeats for any further
	// retries.
	assert.Equal(t, 500*time.Millisecond, policy.delayFor(1))
	assert.Equal(t, time.Second, policy.delayFor(2))
	assert.Equal(t, time.Second, policy.delayFor(3))
	require.NotNil(t, policy.IsTerminal)
	assert.True(t, policy.IsTerminal(ErrPermissionDenied))
	assert.False(t, policy.IsTerminal(fmt.Errorf("transient")))
}

func TestRetryPolicyWaitsBetweenAttempts(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	policy := &RetryPolicy{
		MaxAttempts: 2,
		Delays:      []time.Duration{time.Second},
	}

	done := make(chan error, 1)
	attempts := make(chan int, 4)
	go func() {
		done <- policy.Do(context.Background(), mock, func(attempt int) error {
			attempts <- attempt
			return fmt.Errorf("not yet")
		})
	}()

	assert.Equal(t, 1, <-attempts)
	select {
	case <-done:
		t.Fatal("retry fired before the backoff elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	mock.Add(time.Second)
	assert.Equal(t, 2, <-attempts)
	require.Error(t, <-done)
}

func TestRetryPolicyContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := &RetryPolicy{MaxAttempts: 5, Delays: []time.Duration{time.Hour}}

	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, clock.NewMock(), func(attempt int) error {
			return fmt.Errorf("transient")
		})
	}()
	cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicyRejectsZeroAttempts(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{}
	err := policy.Do(context.Background(), nil, func(int) error { return nil })
	require.Error(t, err)
}
