package videocore

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sentinelvision/sentinel-go/internal/errors"
)

// RetryPolicy is a reusable bounded-retry schedule with terminal-error
// classification. Device enumeration and forced camera recovery share it
// instead of open-coding their own backoff loops.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of tries, including the first.
	MaxAttempts int

	// Delays holds the waits applied before each retry. When there are
	// more retries than entries the last entry repeats.
	Delays []time.Duration

	// IsTerminal classifies an error as non-retryable. A nil func treats
	// every error as transient.
	IsTerminal func(error) bool
}

// delayFor returns the wait before retry number n (1-based).
func (p *RetryPolicy) delayFor(n int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if n > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[n-1]
}

// Do runs op until it succeeds, a terminal error occurs, the attempt budget
// is exhausted, or the context is cancelled. The last error is returned.
// The clock is injectable for tests.
func (p *RetryPolicy) Do(ctx context.Context, clk clock.Clock, op func(attempt int) error) error {
	if p.MaxAttempts < 1 {
		return errors.Newf("retry policy needs at least one attempt").
			Component(ComponentVideoCore).
			Category(errors.CategoryValidation).
			Build()
	}
	if clk == nil {
		clk = clock.New()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.New(err).
				Component(ComponentVideoCore).
				Category(errors.CategoryCancellation).
				Context("attempt", attempt).
				Build()
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if p.IsTerminal != nil && p.IsTerminal(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delayFor(attempt)
		if delay > 0 {
			timer := clk.Timer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return errors.New(ctx.Err()).
					Component(ComponentVideoCore).
					Category(errors.CategoryCancellation).
					Context("attempt", attempt).
					Build()
			}
		}
	}

	return lastErr
}

// EnumerationRetryPolicy returns the bounded backoff used by device
// discovery: three attempts, waiting 500ms then 1s, stopping immediately on
// explicit permission denial.
func EnumerationRetryPolicy(maxAttempts int, firstDelay, nextDelay time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if firstDelay <= 0 {
		firstDelay = 500 * time.Millisecond
	}
	if nextDelay <= 0 {
		nextDelay = time.Second
	}
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		Delays:      []time.Duration{firstDelay, nextDelay},
		IsTerminal: func(err error) bool {
			return errors.Is(err, ErrPermissionDenied)
		},
	}
}
