package nodes

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls retries of external calls.
type RetryPolicy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryPolicy is three attempts, starting at 1s, doubling, capped at 10s, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialInterval:     time.Second,
		MaxInterval:         10 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	q := p
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 1
	}
	if q.InitialInterval <= 0 {
		q.InitialInterval = time.Second
	}
	if q.MaxInterval < q.InitialInterval {
		q.MaxInterval = q.InitialInterval
	}
	if q.Multiplier < 1 {
		q.Multiplier = 1
	}
	if q.RandomizationFactor < 0 || q.RandomizationFactor > 1 {
		q.RandomizationFactor = 0
	}
	return q
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	q := p.normalized()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.InitialInterval
	b.MaxInterval = q.MaxInterval
	b.Multiplier = q.Multiplier
	b.RandomizationFactor = q.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(q.MaxAttempts-1)), ctx)
}

// retry runs op until it succeeds, fails permanently, or the policy is spent.
// notify is called before each wait.
func retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error), notify func(attempt int, err error, wait time.Duration)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	onRetry := func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	}
	return backoff.RetryNotifyWithData(operation, p.backOff(ctx), onRetry)
}
