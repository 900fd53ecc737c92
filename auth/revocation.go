package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dashgate/dashgate/storage"
)

const (
	revocationNamespace  = "sessions"
	revokedRecordType    = "REVOKED"
	watermarkRecordType  = "WATERMARK"
	defaultSweepInterval = 5 * time.Minute
)

type revokedEntry struct {
	ExpiresAt time.Time `json:"expires_at"`
}

type watermarkEntry struct {
	Before    time.Time `json:"before"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevocationList records sessions ended before their natural expiry. Entries
// are keyed by the SHA-256 of the session id and pruned once the session
// would have expired anyway, so the list never grows past the number of
// sessions issued within one TTL.
//
// Repository I/O is serialized by persistMu and never happens under mu, so
// IsRevoked only ever waits for map updates. A write persists before it is
// published, so a committed revocation is visible to every validation that
// starts afterwards.
type RevocationList struct {
	persistMu sync.Mutex

	mu         sync.RWMutex
	ids        map[string]time.Time
	watermarks map[string]watermarkEntry

	repo  storage.Repository
	retry RetryPolicy
	now   func() time.Time
}

// staleRecord names a persisted entry dropped from memory by a prune.
type staleRecord struct {
	recordType string
	id         string
}

// NewRevocationList loads persisted revocations from repo. A nil repo keeps
// the list in memory only.
func NewRevocationList(repo storage.Repository, opts ...Option) (*RevocationList, error) {
	o := buildOptions(opts)
	rl := &RevocationList{
		ids:        make(map[string]time.Time),
		watermarks: make(map[string]watermarkEntry),
		repo:       repo,
		retry:      o.retry,
		now:        o.now,
	}
	if repo == nil {
		return rl, nil
	}
	if err := rl.load(); err != nil {
		return nil, err
	}
	return rl, nil
}

func (rl *RevocationList) load() error {
	var ids []string
	err := rl.retry.do("listing revoked sessions", func() error {
		var err error
		ids, err = rl.repo.List(revocationNamespace, revokedRecordType)
		return err
	})
	if err != nil {
		if storage.IsMissing(err) {
			return nil
		}
		return err
	}
	for _, id := range ids {
		var e revokedEntry
		if err := rl.readRecord(revokedRecordType, id, &e); err != nil {
			return err
		}
		rl.ids[id] = e.ExpiresAt
	}

	var accounts []string
	err = rl.retry.do("listing session watermarks", func() error {
		var err error
		accounts, err = rl.repo.List(revocationNamespace, watermarkRecordType)
		return err
	})
	if err != nil && !storage.IsMissing(err) {
		return err
	}
	for _, account := range accounts {
		var w watermarkEntry
		if err := rl.readRecord(watermarkRecordType, account, &w); err != nil {
			return err
		}
		rl.watermarks[account] = w
	}
	return nil
}

func (rl *RevocationList) readRecord(recordType, id string, v any) error {
	var env *storage.Envelope
	err := rl.retry.do("reading "+recordType, func() error {
		var err error
		env, err = rl.repo.Get(revocationNamespace, recordType, id)
		return err
	})
	if err != nil {
		return err
	}
	payload, err := env.Payload()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding %s %s: %w", recordType, id, err)
	}
	return nil
}

func (rl *RevocationList) writeRecord(recordType, id string, v any) error {
	if rl.repo == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rl.retry.do("persisting "+recordType, func() error {
		return rl.repo.Put(revocationNamespace, recordType, id, storage.PlainRecord(payload, 1))
	})
}

func hashSessionID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Revoke marks a session id as destroyed until expiresAt.
func (rl *RevocationList) Revoke(sessionID string, expiresAt time.Time) error {
	key := hashSessionID(sessionID)
	rl.persistMu.Lock()
	defer rl.persistMu.Unlock()
	if err := rl.writeRecord(revokedRecordType, key, revokedEntry{ExpiresAt: expiresAt}); err != nil {
		return err
	}
	rl.mu.Lock()
	rl.ids[key] = expiresAt
	stale := rl.expireLocked(rl.now())
	rl.mu.Unlock()
	rl.deleteStale(stale)
	return nil
}

// RevokeIssuedBefore revokes every session of account issued at or before
// before. The watermark is dropped once expiresAt passes.
func (rl *RevocationList) RevokeIssuedBefore(account string, before, expiresAt time.Time) error {
	w := watermarkEntry{Before: before, ExpiresAt: expiresAt}
	rl.persistMu.Lock()
	defer rl.persistMu.Unlock()
	if err := rl.writeRecord(watermarkRecordType, account, w); err != nil {
		return err
	}
	rl.mu.Lock()
	rl.watermarks[account] = w
	stale := rl.expireLocked(rl.now())
	rl.mu.Unlock()
	rl.deleteStale(stale)
	return nil
}

// issuedBefore returns the logout-everywhere watermark of account, if any.
func (rl *RevocationList) issuedBefore(account string) (time.Time, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	w, ok := rl.watermarks[account]
	return w.Before, ok
}

// IsRevoked reports whether s was destroyed individually or by a
// logout-everywhere.
func (rl *RevocationList) IsRevoked(s *Session) bool {
	key := hashSessionID(s.ID)
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if _, ok := rl.ids[key]; ok {
		return true
	}
	if w, ok := rl.watermarks[s.Account]; ok && !s.IssuedAt.After(w.Before) {
		return true
	}
	return false
}

// Len returns the number of individually revoked sessions held.
func (rl *RevocationList) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.ids)
}

// Prune drops entries whose session would have expired naturally and
// returns how many revoked sessions were removed.
func (rl *RevocationList) Prune() int {
	rl.persistMu.Lock()
	defer rl.persistMu.Unlock()
	rl.mu.Lock()
	stale := rl.expireLocked(rl.now())
	rl.mu.Unlock()
	rl.deleteStale(stale)

	removed := 0
	for _, r := range stale {
		if r.recordType == revokedRecordType {
			removed++
		}
	}
	return removed
}

// expireLocked removes expired entries from memory and returns the records
// to delete from the repository. Callers hold mu and persistMu.
func (rl *RevocationList) expireLocked(now time.Time) []staleRecord {
	var stale []staleRecord
	for key, exp := range rl.ids {
		if now.Before(exp) {
			continue
		}
		delete(rl.ids, key)
		stale = append(stale, staleRecord{revokedRecordType, key})
	}
	for account, w := range rl.watermarks {
		if now.Before(w.ExpiresAt) {
			continue
		}
		delete(rl.watermarks, account)
		stale = append(stale, staleRecord{watermarkRecordType, account})
	}
	return stale
}

// deleteStale removes pruned records from the repository. Callers hold
// persistMu but not mu. A failed delete leaves a stale record that is
// harmless and is retried on the next prune after reload.
func (rl *RevocationList) deleteStale(stale []staleRecord) {
	if rl.repo == nil {
		return
	}
	for _, r := range stale {
		_ = rl.repo.Delete(revocationNamespace, r.recordType, r.id)
	}
}

// Run prunes periodically until ctx is done. Correctness does not depend on
// it; it only bounds memory between writes.
func (rl *RevocationList) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune()
		}
	}
}
