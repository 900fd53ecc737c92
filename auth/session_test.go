package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgate/dashgate/storage/memory"
)

func newTestSessions(t *testing.T, clock *fakeClock) (*SessionManager, *RevocationList) {
	t.Helper()
	rl, err := NewRevocationList(memory.NewRepository(), WithClock(clock.Now))
	require.NoError(t, err)
	return NewSessionManager(testAccount(t), testKeyring(t), rl, WithClock(clock.Now)), rl
}

func TestSessionIssueValidate(t *testing.T) {
	clock := newFakeClock()
	sm, _ := newTestSessions(t, clock)

	s, err := sm.Issue(Account{Username: testUsername})
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultSessionTTL), s.ExpiresAt)
	assert.Len(t, strings.Split(s.Cookie(), "."), 4)

	got, err := sm.Validate(s.Cookie())
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, testUsername, got.Account)
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))
}

func TestSessionIDsAreUnique(t *testing.T) {
	sm, _ := newTestSessions(t, newFakeClock())
	seen := make(map[string]bool)
	for range 100 {
		s, err := sm.Issue(Account{Username: testUsername})
		require.NoError(t, err)
		require.False(t, seen[s.ID])
		seen[s.ID] = true
	}
}

func TestSessionIssueRejectsOtherAccount(t *testing.T) {
	sm, _ := newTestSessions(t, newFakeClock())
	_, err := sm.Issue(Account{Username: "mallory"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestSessionTTLBoundary(t *testing.T) {
	clock := newFakeClock()
	sm, _ := newTestSessions(t, clock)
	s, err := sm.Issue(Account{Username: testUsername})
	require.NoError(t, err)

	clock.Advance(23*time.Hour + 59*time.Minute)
	_, err = sm.Validate(s.Cookie())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = sm.Validate(s.Cookie())
	assert.ErrorIs(t, err, ErrSessionExpired, "valid exactly at expiry is not allowed")

	clock.Advance(time.Second)
	_, err = sm.Validate(s.Cookie())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionTampering(t *testing.T) {
	clock := newFakeClock()
	sm, _ := newTestSessions(t, clock)
	s, err := sm.Issue(Account{Username: testUsername})
	require.NoError(t, err)
	parts := strings.Split(s.Cookie(), ".")

	cases := map[string]string{
		"Empty":          "",
		"Garbage":        "not-a-cookie",
		"TooManyParts":   s.Cookie() + ".x",
		"ExtendedExpiry": strings.Join([]string{parts[0], parts[1], "9999999999999999999", parts[3]}, "."),
		"OtherID":        strings.Join([]string{"forged", parts[1], parts[2], parts[3]}, "."),
		"BadMAC":         strings.Join([]string{parts[0], parts[1], parts[2], "AAAA"}, "."),
		"BadEncoding":    strings.Join([]string{parts[0], parts[1], parts[2], "!!!"}, "."),
		"BadTimestamp":   strings.Join([]string{parts[0], "abc", parts[2], parts[3]}, "."),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := sm.Validate(raw)
			assert.ErrorIs(t, err, ErrSessionInvalid)
		})
	}
}

func TestSessionForgedWithOtherSecret(t *testing.T) {
	clock := newFakeClock()
	sm, _ := newTestSessions(t, clock)

	otherKeys, err := NewKeyring([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	rl, err := NewRevocationList(nil)
	require.NoError(t, err)
	forger := NewSessionManager(Account{Username: testUsername}, otherKeys, rl, WithClock(clock.Now))
	forged, err := forger.Issue(Account{Username: testUsername})
	require.NoError(t, err)

	_, err = sm.Validate(forged.Cookie())
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestSessionDestroy(t *testing.T) {
	clock := newFakeClock()
	sm, rl := newTestSessions(t, clock)
	s1, err := sm.Issue(Account{Username: testUsername})
	require.NoError(t, err)
	s2, err := sm.Issue(Account{Username: testUsername})
	require.NoError(t, err)

	require.NoError(t, sm.Destroy(s1.ID))
	assert.Equal(t, 1, rl.Len())

	_, err = sm.Validate(s1.Cookie())
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = sm.Validate(s2.Cookie())
	assert.NoError(t, err)
}

func TestSessionDestroyAll(t *testing.T) {
	clock := newFakeClock()
	sm, _ := newTestSessions(t, clock)
	acct := Account{Username: testUsername}

	s1, err := sm.Issue(acct)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	s2, err := sm.Issue(acct)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, sm.DestroyAll(acct))

	for _, s := range []*Session{s1, s2} {
		_, err := sm.Validate(s.Cookie())
		assert.ErrorIs(t, err, ErrSessionExpired)
	}

	s3, err := sm.Issue(acct)
	require.NoError(t, err)
	_, err = sm.Validate(s3.Cookie())
	assert.NoError(t, err, "sessions issued after logout-everywhere are valid")
}

func TestSessionDestroyAllSameInstant(t *testing.T) {
	clock := newFakeClock()
	sm, _ := newTestSessions(t, clock)
	acct := Account{Username: testUsername}

	before, err := sm.Issue(acct)
	require.NoError(t, err)
	require.NoError(t, sm.DestroyAll(acct))
	after, err := sm.Issue(acct)
	require.NoError(t, err)

	_, err = sm.Validate(before.Cookie())
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = sm.Validate(after.Cookie())
	assert.NoError(t, err)
	assert.True(t, after.IssuedAt.After(before.IssuedAt))
	assert.Equal(t, after.IssuedAt.Add(sm.TTL()), after.ExpiresAt)
}

func TestSessionRevocationSurvivesRestart(t *testing.T) {
	clock := newFakeClock()
	repo := memory.NewRepository()
	keys := testKeyring(t)
	acct := testAccount(t)

	rl, err := NewRevocationList(repo, WithClock(clock.Now))
	require.NoError(t, err)
	sm := NewSessionManager(acct, keys, rl, WithClock(clock.Now))
	s, err := sm.Issue(acct)
	require.NoError(t, err)
	require.NoError(t, sm.Destroy(s.ID))

	rl2, err := NewRevocationList(repo, WithClock(clock.Now))
	require.NoError(t, err)
	sm2 := NewSessionManager(acct, keys, rl2, WithClock(clock.Now))
	_, err = sm2.Validate(s.Cookie())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestWithSessionTTL(t *testing.T) {
	clock := newFakeClock()
	rl, err := NewRevocationList(nil)
	require.NoError(t, err)
	sm := NewSessionManager(testAccount(t), testKeyring(t), rl, WithClock(clock.Now), WithSessionTTL(time.Hour))
	assert.Equal(t, time.Hour, sm.TTL())

	s, err := sm.Issue(Account{Username: testUsername})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = sm.Validate(s.Cookie())
	assert.ErrorIs(t, err, ErrSessionExpired)
}
