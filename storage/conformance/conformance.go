// Package conformance holds a test suite that every storage.Repository
// implementation must pass.
package conformance

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgate/dashgate/storage"
)

// Run exercises repo. Each call should receive an empty repository.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	const ns = "capkeys"
	env := storage.PlainRecord([]byte(`{"v":1}`), 1)

	t.Run("GetMissingNamespace", func(t *testing.T) {
		_, err := repo.Get("no-such-ns", "KEY", "x")
		require.Error(t, err)
		assert.True(t, storage.IsMissing(err))
	})

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, repo.Put(ns, "KEY", "k1", env))
		got, err := repo.Get(ns, "KEY", "k1")
		require.NoError(t, err)
		payload, err := got.Payload()
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(payload))
		assert.Equal(t, uint64(1), got.Version)
	})

	t.Run("GetMissingRecord", func(t *testing.T) {
		_, err := repo.Get(ns, "KEY", "nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("ListByType", func(t *testing.T) {
		require.NoError(t, repo.Put(ns, "KEY", "k2", env))
		require.NoError(t, repo.Put(ns, "OTHER", "o1", env))
		ids, err := repo.List(ns, "KEY")
		require.NoError(t, err)
		sort.Strings(ids)
		assert.Equal(t, []string{"k1", "k2"}, ids)

		ids, err = repo.List("empty-ns", "KEY")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("CreateIfAbsent", func(t *testing.T) {
		require.NoError(t, repo.PutCAS(ns, "KEY", "k3", 0, storage.PlainRecord([]byte(`{}`), 1)))
		err := repo.PutCAS(ns, "KEY", "k3", 0, storage.PlainRecord([]byte(`{}`), 1))
		assert.ErrorIs(t, err, storage.ErrCASFailed)
	})

	t.Run("CASUpdate", func(t *testing.T) {
		require.NoError(t, repo.PutCAS(ns, "KEY", "k3", 1, storage.PlainRecord([]byte(`{"r":1}`), 2)))
		err := repo.PutCAS(ns, "KEY", "k3", 1, storage.PlainRecord([]byte(`{"r":2}`), 2))
		assert.ErrorIs(t, err, storage.ErrCASFailed)
		err = repo.PutCAS(ns, "KEY", "missing", 4, storage.PlainRecord([]byte(`{}`), 5))
		assert.ErrorIs(t, err, storage.ErrCASFailed)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ns, "KEY", "k2"))
		_, err := repo.Get(ns, "KEY", "k2")
		assert.True(t, storage.IsMissing(err))
		assert.True(t, storage.IsMissing(repo.Delete(ns, "KEY", "k2")))
	})

	t.Run("BatchRollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Put("KEY", "batched", env); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		_, err = repo.Get(ns, "KEY", "batched")
		assert.True(t, storage.IsMissing(err))
	})

	t.Run("BatchCommit", func(t *testing.T) {
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Put("KEY", "b1", env); err != nil {
				return err
			}
			return tx.Delete("KEY", "k1")
		})
		require.NoError(t, err)
		_, err = repo.Get(ns, "KEY", "b1")
		assert.NoError(t, err)
		_, err = repo.Get(ns, "KEY", "k1")
		assert.True(t, storage.IsMissing(err))
	})
}
