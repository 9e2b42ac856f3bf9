package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 100
	defaultMinDelay    = 5 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// ErrExhausted is wrapped by Policy.Do once every attempt was used.
var ErrExhausted = errors.New("retry attempts exhausted")

// ErrNotYet is returned by a check whose condition does not hold yet.
var ErrNotYet = errors.New("condition not met")

// Policy is a capped exponential backoff with a fixed attempt budget.
type Policy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration

	// Sleep replaces the timer wait, mostly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy polls up to 100 times, waiting between 5s and 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		MinDelay:    defaultMinDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

// Delay returns the wait after the given 1-based attempt: MinDelay doubled
// per attempt, capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.effectiveMinDelay()
	max := p.effectiveMaxDelay()
	if max < base {
		max = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

// Do calls check until it returns nil. ErrNotYet and transient errors are
// retried, terminal errors are returned at once wrapped with the attempt.
// It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, check func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.effectiveMaxAttempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := check(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}
		lastErr = err
		if !errors.Is(err, ErrNotYet) {
			if d := Classify(err); !d.IsTransient() {
				return attempt, fmt.Errorf("terminal_failure attempt=%d reason=%s: %w", attempt, d.Reason, err)
			}
		}
		if attempt == attempts {
			break
		}
		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return attempt, err
		}
	}
	return attempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p Policy) effectiveMaxAttempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) effectiveMinDelay() time.Duration {
	if p.MinDelay <= 0 {
		return defaultMinDelay
	}
	return p.MinDelay
}

func (p Policy) effectiveMaxDelay() time.Duration {
	if p.MaxDelay <= 0 {
		return defaultMaxDelay
	}
	return p.MaxDelay
}
