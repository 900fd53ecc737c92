package api

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dashgate/dashgate/internal/uuid"
	"github.com/dashgate/dashgate/storage"
)

const (
	auditNamespace  = "audit"
	auditRecordType = "KEY_EVENT"

	defaultAuditMaxEntries = 1000
)

// AuditEntry is one persisted capability-key lifecycle event.
type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	KeyID     string    `json:"key_id"`
	Principal string    `json:"principal"`
	Scopes    []string  `json:"scopes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// appendAuditEntry persists a key lifecycle event and trims the trail to
// the newest maxEntries.
func (a *API) appendAuditEntry(action AuditEvent, keyID, principal string, scopes []string) error {
	entry := AuditEntry{
		ID:        uuid.New(),
		Action:    string(action),
		KeyID:     keyID,
		Principal: principal,
		Scopes:    scopes,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// Ids sort by time so retention can drop the oldest without decoding.
	id := fmt.Sprintf("%020d-%s", entry.CreatedAt.UnixNano(), entry.ID)
	if err := a.repo.Put(auditNamespace, auditRecordType, id, storage.PlainRecord(data, 1)); err != nil {
		return err
	}
	return a.pruneAuditEntries()
}

func (a *API) auditIDs() ([]string, error) {
	ids, err := a.repo.List(auditNamespace, auditRecordType)
	if err != nil {
		if storage.IsMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

func (a *API) pruneAuditEntries() error {
	if a.auditMaxEntries <= 0 {
		return nil
	}
	ids, err := a.auditIDs()
	if err != nil {
		return err
	}
	excess := len(ids) - a.auditMaxEntries
	if excess <= 0 {
		return nil
	}
	return a.repo.Batch(auditNamespace, func(tx storage.BatchTx) error {
		for _, id := range ids[:excess] {
			if err := tx.Delete(auditRecordType, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// listAuditEntries returns up to limit entries, newest first, optionally
// restricted to one key.
func (a *API) listAuditEntries(keyID string, limit int) ([]AuditEntry, error) {
	ids, err := a.auditIDs()
	if err != nil {
		return nil, err
	}
	entries := make([]AuditEntry, 0, min(len(ids), limit))
	for _, id := range slices.Backward(ids) {
		if len(entries) >= limit {
			break
		}
		env, err := a.repo.Get(auditNamespace, auditRecordType, id)
		if err != nil {
			continue
		}
		payload, err := env.Payload()
		if err != nil {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		if keyID != "" && !strings.EqualFold(entry.KeyID, keyID) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
