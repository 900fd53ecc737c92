package auth

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dashgate/dashgate/internal/util"
	"github.com/dashgate/dashgate/storage"
	"github.com/dashgate/dashgate/storage/memory"
)

const (
	testUsername = "admin"
	testPassword = "correct horse battery staple"
)

// fakeClock is a settable clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testAccount(t *testing.T) Account {
	t.Helper()
	params := util.DefaultArgon2idParams()
	params.Time = 1
	params.MemoryKiB = 8 * 1024
	params.Parallelism = 1
	hash, err := util.HashPassword(util.Normalize(testPassword), params)
	require.NoError(t, err)
	return Account{Username: testUsername, PasswordHash: hash}
}

func testKeyring(t *testing.T) *Keyring {
	t.Helper()
	kr, err := NewKeyring([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return kr
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(DefaultScopes...)
	require.NoError(t, err)
	return r
}

func noSleepRetry(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Backoff: time.Millisecond, sleep: func(time.Duration) {}}
}

var errFlaky = errors.New("connection reset")

// flakyRepo fails the next failWrites write calls before delegating. The
// next failAfterCommit PutCAS calls commit and then report a failure.
type flakyRepo struct {
	storage.Repository
	failWrites      atomic.Int32
	failAfterCommit atomic.Int32
	writes          atomic.Int32
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{Repository: memory.NewRepository()}
}

func (r *flakyRepo) fail() error {
	r.writes.Add(1)
	if r.failWrites.Load() > 0 {
		r.failWrites.Add(-1)
		return errFlaky
	}
	return nil
}

func (r *flakyRepo) Put(ns, typ, id string, env *storage.Envelope) error {
	if err := r.fail(); err != nil {
		return err
	}
	return r.Repository.Put(ns, typ, id, env)
}

func (r *flakyRepo) PutCAS(ns, typ, id string, v uint64, env *storage.Envelope) error {
	if err := r.fail(); err != nil {
		return err
	}
	if err := r.Repository.PutCAS(ns, typ, id, v, env); err != nil {
		return err
	}
	if r.failAfterCommit.Load() > 0 {
		r.failAfterCommit.Add(-1)
		return errFlaky
	}
	return nil
}
