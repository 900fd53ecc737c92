package cmd

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgate/dashgate/auth"
	"github.com/dashgate/dashgate/internal/config"
	"github.com/dashgate/dashgate/internal/util"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.Execute()
	return out.String(), err
}

func offlineEnv(t *testing.T) *config.Config {
	t.Helper()
	params := util.DefaultArgon2idParams()
	params.Time, params.MemoryKiB, params.Parallelism = 1, 8*1024, 1
	hash, err := util.HashPassword("pw", params)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "dashgate.db")
	t.Setenv("DASH_DB_PATH", dbPath)
	t.Setenv("DASH_ADMIN_PASS_HASH", hash)
	t.Setenv("DASH_SECRET_KEY", "an-offline-test-secret-32-bytes!")
	t.Setenv("DASH_STORAGE_BACKEND", "bbolt")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "correct horse\n", "hash-password")
	require.NoError(t, err)

	h, err := util.ParseArgon2idHash(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, h.Verify(util.Normalize("correct horse")))
	assert.False(t, h.Verify(util.Normalize("correct horse\n")))

	_, err = run(t, "", "hash-password")
	assert.Error(t, err)
}

func TestKeysOffline(t *testing.T) {
	cfg := offlineEnv(t)

	repo, closeRepo, err := openRepository(context.Background(), cfg.Storage)
	require.NoError(t, err)
	keyring, err := buildKeyring(cfg)
	require.NoError(t, err)
	core, err := buildCore(cfg, keyring, repo)
	require.NoError(t, err)
	issued, err := core.Keys.Issue(core.Account, []string{"files:read"})
	require.NoError(t, err)
	closeRepo()

	out, err := run(t, "", "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, issued.KeyID)
	assert.Contains(t, out, "files:read")
	assert.Contains(t, out, "active")
	assert.NotContains(t, out, issued.Secret)

	out, err = run(t, "", "keys", "revoke", issued.KeyID)
	require.NoError(t, err)
	assert.Contains(t, out, issued.KeyID)

	out, err = run(t, "", "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked")

	_, err = run(t, "", "keys", "revoke", issued.KeyID)
	assert.Error(t, err)
}

func TestKeysOfflineRequiresSecret(t *testing.T) {
	offlineEnv(t)
	t.Setenv("DASH_SECRET_KEY", "")

	_, err := run(t, "", "keys", "list")
	assert.ErrorContains(t, err, "secret_key")
}

func TestGeneratedSecretSurvivesRestart(t *testing.T) {
	offlineEnv(t)
	t.Setenv("DASH_SECRET_KEY", "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.EphemeralSecret())

	start := func() (*auth.Core, func()) {
		repo, closeRepo, err := openRepository(context.Background(), cfg.Storage)
		require.NoError(t, err)
		keyring, err := buildKeyring(cfg)
		require.NoError(t, err)
		core, err := buildCore(cfg, keyring, repo)
		require.NoError(t, err)
		return core, closeRepo
	}

	core, stop := start()
	issued, err := core.Keys.Issue(core.Account, []string{"files:read"})
	require.NoError(t, err)
	stop()

	info, err := os.Stat(devSecretPath(cfg.Storage))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	core, stop = start()
	defer stop()
	k, err := core.Keys.Authenticate(issued.KeyID, issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, []string{"files:read"}, k.Scopes)
}

func TestGeneratedSecretIsReusedByOfflineCommands(t *testing.T) {
	offlineEnv(t)
	t.Setenv("DASH_SECRET_KEY", "")
	cfg, err := config.Load("")
	require.NoError(t, err)

	repo, closeRepo, err := openRepository(context.Background(), cfg.Storage)
	require.NoError(t, err)
	keyring, err := buildKeyring(cfg)
	require.NoError(t, err)
	core, err := buildCore(cfg, keyring, repo)
	require.NoError(t, err)
	issued, err := core.Keys.Issue(core.Account, []string{"files:read"})
	require.NoError(t, err)
	closeRepo()

	out, err := run(t, "", "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, issued.KeyID)
	assert.Contains(t, out, "active")
}

func TestMemoryBackendKeepsRandomSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.Storage.DataRoot = t.TempDir()
	require.True(t, cfg.EphemeralSecret())

	_, err := buildKeyring(cfg)
	require.NoError(t, err)
	_, err = os.Stat(devSecretPath(cfg.Storage))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadOrCreateSecretRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), devSecretFile)
	require.NoError(t, os.WriteFile(path, []byte("short\n"), 0o600))
	_, err := loadOrCreateSecret(path)
	assert.ErrorContains(t, err, "valid secret")
}

func TestScopes(t *testing.T) {
	out, err := run(t, "", "scopes")
	require.NoError(t, err)
	lines := strings.Fields(out)
	assert.Contains(t, lines, "ops:read")
	assert.Contains(t, lines, "files:read")
	assert.IsIncreasing(t, lines)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf).Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf).Info("shown", "key_id", "k_1")
	assert.Contains(t, buf.String(), `"key_id":"k_1"`)

	buf.Reset()
	newLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
