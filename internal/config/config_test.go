package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgate/dashgate/internal/util"
)

func testHash(t *testing.T) string {
	t.Helper()
	params := util.DefaultArgon2idParams()
	params.Time, params.MemoryKiB, params.Parallelism = 1, 8*1024, 1
	h, err := util.HashPassword("correct horse", params)
	require.NoError(t, err)
	return h
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr())
	assert.Equal(t, "/api/v1", cfg.Server.APIRoot)
	assert.Equal(t, "bbolt", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join("data", "dashgate.db"), cfg.Storage.Path)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 50*time.Millisecond, cfg.Auth.StoreRetryBackoff)
	assert.Equal(t, 3, cfg.Auth.StoreRetryAttempts)
	assert.Equal(t, []string{"files:read", "files:write", "reddit:read", "reddit:write", "tasks:write"}, cfg.Auth.Scopes)
	assert.Equal(t, 1000, cfg.Audit.Retention)
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	hash := testHash(t)
	t.Setenv("TEST_DASH_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TEST_DASH_HASH", hash)

	path := writeConfig(t, `
env: prod
server:
  host: 0.0.0.0
  port: 9000
  cors_origin: https://dash.example
storage:
  backend: memory
auth:
  admin_pass_hash: "${TEST_DASH_HASH}"
  secret_key: "${TEST_DASH_SECRET}"
  session_ttl: 12h
  store_retry_backoff: 10ms
  scopes: [files:read, ops:read]
audit:
  webhook_url: https://siem.example/ingest
  webhook_header: "Authorization: Bearer abc"
  webhook_timeout: 2s
  retention: 50
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, hash, cfg.Auth.AdminPassHash)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Auth.SecretKey)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 10*time.Millisecond, cfg.Auth.StoreRetryBackoff)
	assert.Equal(t, []string{"files:read", "ops:read"}, cfg.Auth.Scopes)
	assert.False(t, cfg.EphemeralSecret())

	name, value, ok := cfg.Audit.Header()
	require.True(t, ok)
	assert.Equal(t, "Authorization", name)
	assert.Equal(t, "Bearer abc", value)
	assert.Equal(t, 2*time.Second, cfg.Audit.WebhookTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("DASH_PORT", "9100")
	t.Setenv("DASH_ADMIN_USER", "root")
	t.Setenv("DASH_DATA_ROOT", "/srv/dash-data")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "root", cfg.Auth.AdminUser)
	assert.Equal(t, "/srv/dash-data/dashgate.db", cfg.Storage.Path)

	t.Setenv("DASH_DB_PATH", "/tmp/other.db")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.Path)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeConfig(t, "server:\n  prot: 1\n"))
	assert.ErrorContains(t, err, "parsing config file")

	_, err = Load(writeConfig(t, "auth:\n  session_ttl: soon\n"))
	assert.ErrorContains(t, err, "session_ttl")

	t.Setenv("DASH_PORT", "eighty")
	_, err = Load("")
	assert.ErrorContains(t, err, "DASH_PORT")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestValidate(t *testing.T) {
	hash := testHash(t)
	valid := func() *Config {
		cfg := Default()
		cfg.Storage.Path = "dashgate.db"
		cfg.Auth.AdminPassHash = hash
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown env", func(c *Config) { c.Env = "staging" }, "env"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"relative api root", func(c *Config) { c.Server.APIRoot = "api" }, "api_root"},
		{"half tls", func(c *Config) { c.Server.TLSCert = "cert.pem" }, "tls_key"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }, "storage.backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "postgres_dsn"},
		{"missing hash", func(c *Config) { c.Auth.AdminPassHash = "" }, "admin_pass_hash"},
		{"malformed hash", func(c *Config) { c.Auth.AdminPassHash = "$2b$12$bcrypt" }, "admin_pass_hash"},
		{"prod without secret", func(c *Config) { c.Env = "prod" }, "secret_key"},
		{"short secret", func(c *Config) { c.Auth.SecretKey = "short" }, "at least 32"},
		{"no scopes", func(c *Config) { c.Auth.Scopes = nil }, "scopes"},
		{"zero ttl", func(c *Config) { c.Auth.SessionTTL = 0 }, "session_ttl"},
		{"no attempts", func(c *Config) { c.Auth.StoreRetryAttempts = 0 }, "store_retry_attempts"},
		{"bad webhook header", func(c *Config) { c.Audit.WebhookHeader = "Bearer abc" }, "webhook_header"},
		{"no retention", func(c *Config) { c.Audit.Retention = 0 }, "retention"},
		{"zero webhook timeout", func(c *Config) {
			c.Audit.WebhookURL = "https://siem.example/ingest"
			c.Audit.WebhookTimeout = 0
		}, "webhook_timeout"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestEphemeralSecret(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.EphemeralSecret())
	cfg.Env = "prod"
	assert.False(t, cfg.EphemeralSecret())
	cfg.Env = "dev"
	cfg.Auth.SecretKey = "0123456789abcdef0123456789abcdef"
	assert.False(t, cfg.EphemeralSecret())
}
