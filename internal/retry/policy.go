// Package retry holds the bounded attempt/poll policy shared by funding and
// transaction submission.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrPollBudgetExceeded is returned by Poll when the condition never held.
	ErrPollBudgetExceeded = errors.New("poll budget exceeded")
)

// Policy bounds a retried operation.
//
// MaxAttempts is the number of times the whole operation is issued.
// PollAttempts and PollInterval bound the confirmation loop inside one attempt.
// Backoff is the pause between two attempts.
type Policy struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	PollAttempts int           `mapstructure:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Backoff      time.Duration `mapstructure:"backoff"`
}

// FundingPolicy returns the faucet policy: 3 attempts, 32 polls 500ms apart,
// 1s between attempts.
func FundingPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		PollAttempts: 32,
		PollInterval: 500 * time.Millisecond,
		Backoff:      time.Second,
	}
}

// SubmitPolicy returns the confirmation policy for transaction submission.
// Submissions are never re-issued, so MaxAttempts is 1.
func SubmitPolicy() Policy {
	return Policy{
		MaxAttempts:  1,
		PollAttempts: 60,
		PollInterval: 500 * time.Millisecond,
	}
}

// Validate checks that every bound is usable.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.PollAttempts < 1 {
		return fmt.Errorf("poll_attempts must be at least 1, got %d", p.PollAttempts)
	}
	if p.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative, got %s", p.PollInterval)
	}
	if p.Backoff < 0 {
		return fmt.Errorf("backoff must not be negative, got %s", p.Backoff)
	}
	return nil
}

// PollBudget is the longest time one attempt may spend polling.
func (p Policy) PollBudget() time.Duration {
	return time.Duration(p.PollAttempts) * p.PollInterval
}

// errNotDone marks a poll whose condition does not hold yet.
var errNotDone = errors.New("condition not met")

// Poll calls cond up to PollAttempts times, PollInterval apart. It returns nil
// as soon as cond reports done, the first error cond returns, the context
// error, or ErrPollBudgetExceeded.
func (p Policy) Poll(ctx context.Context, cond func(attempt int) (bool, error)) error {
	attempt := 0
	op := func() error {
		attempt++
		done, err := cond(attempt)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotDone
		}
		return nil
	}

	err := backoff.Retry(op, p.constant(ctx, p.PollInterval, p.PollAttempts))
	if errors.Is(err, errNotDone) {
		return fmt.Errorf("%w after %d polls", ErrPollBudgetExceeded, p.PollAttempts)
	}
	return err
}

// Attempts runs op up to MaxAttempts times with Backoff between failures and
// returns the last error. A backoff.Permanent error stops immediately.
func (p Policy) Attempts(ctx context.Context, op func(attempt int) error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		return op(attempt)
	}, p.constant(ctx, p.Backoff, p.MaxAttempts))
}

// constant is a fixed-interval schedule allowing tries calls in total.
func (p Policy) constant(ctx context.Context, interval time.Duration, tries int) backoff.BackOff {
	retries := 0
	if tries > 1 {
		retries = tries - 1
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(retries)),
		ctx,
	)
}

// Sleep pauses for d or until ctx is done. Scenarios use it for the fixed
// settle delays between dependent calls.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
