package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dashgate/dashgate/storage"
)

// RetryPolicy bounds how often a failing store operation is re-attempted.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration

	sleep func(time.Duration)
}

// DefaultRetryPolicy tries three times, waiting 50ms then 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}
}

// permanent reports store outcomes that retrying cannot change.
func permanent(err error) bool {
	return errors.Is(err, storage.ErrCASFailed) || storage.IsMissing(err)
}

// do runs fn until it succeeds, fails permanently, or attempts run out. In
// the last case the error wraps ErrStoreUnavailable.
func (p RetryPolicy) do(op string, fn func() error) error {
	attempts := max(p.Attempts, 1)
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	var err error
	for i := range attempts {
		if err = fn(); err == nil || permanent(err) {
			return err
		}
		if i < attempts-1 {
			sleep(p.Backoff << i)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
