package retry

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted signals the caller to stop retrying.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy is a bounded exponential backoff: base*2^(attempt-1) capped at Max,
// giving up after MaxAttempts.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{BaseDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 12}
}

func (p Policy) NextDelay(attempt int) (time.Duration, error) {
	if attempt < 1 {
		return 0, errors.New("attempt must be >= 1")
	}
	if attempt > p.MaxAttempts {
		return 0, ErrAttemptsExhausted
	}
	delay := p.BaseDelay << (attempt - 1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay, nil
}

// Wait sleeps for the attempt's backoff delay, returning early if the
// context is canceled.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	delay, err := p.NextDelay(attempt)
	if err != nil {
		return err
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
