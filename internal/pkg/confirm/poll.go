package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultInterval    = 1 * time.Second
	DefaultMaxAttempts = 120
)

var ErrAttemptsExhausted = errors.New("attempts exhausted")

// Policy bounds a polling loop. The worst case duration is roughly
// Interval * MaxAttempts.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		Interval:    DefaultInterval,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// ConditionFunc is called once per attempt, starting at 1. Returning done
// stops the loop successfully; a non-nil error stops it with that error.
type ConditionFunc func(ctx context.Context, attempt int) (done bool, err error)

// Poll runs condition until it reports done, fails, the attempt ceiling is
// reached or ctx is cancelled. Attempts are separated by Interval.
func Poll(ctx context.Context, policy Policy, condition ConditionFunc) error {
	if policy.MaxAttempts <= 0 {
		return fmt.Errorf("%w: policy allows no attempts", ErrAttemptsExhausted)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("polling cancelled after %d attempts: %w", attempt-1, ctx.Err())
		case <-timer.C:
		}

		done, err := condition(ctx, attempt)
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		timer.Reset(policy.Interval)
	}

	return fmt.Errorf("%w: %d attempts", ErrAttemptsExhausted, policy.MaxAttempts)
}
