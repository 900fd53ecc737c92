package auth

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dashgate/dashgate/storage"
)

func TestRetryPolicy(t *testing.T) {
	var slept []time.Duration
	p := RetryPolicy{Attempts: 4, Backoff: 10 * time.Millisecond, sleep: func(d time.Duration) { slept = append(slept, d) }}

	calls := 0
	err := p.do("op", func() error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, slept)
}

func TestRetryPolicyPermanentErrors(t *testing.T) {
	p := noSleepRetry(5)
	for _, perm := range []error{storage.ErrCASFailed, storage.ErrNotFound, fmt.Errorf("x: %w", storage.ErrNamespaceNotFound)} {
		calls := 0
		err := p.do("op", func() error {
			calls++
			return perm
		})
		assert.Equal(t, 1, calls)
		assert.False(t, errors.Is(err, ErrStoreUnavailable))
	}
}

func TestRetryPolicyZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{sleep: func(time.Duration) {}}.do("op", func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}
