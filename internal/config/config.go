package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dashgate/dashgate/internal/util"
)

// MinSecretKeyLen is the shortest accepted DASH_SECRET_KEY.
const MinSecretKeyLen = 32

// Config is the complete dashgate configuration.
type Config struct {
	Env     string        `yaml:"env"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIRoot    string `yaml:"api_root"`
	TLSCert    string `yaml:"tls_cert"`
	TLSKey     string `yaml:"tls_key"`
	CORSOrigin string `yaml:"cors_origin"`
}

// StorageConfig selects the record repository.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // memory, bbolt, postgres
	DataRoot    string `yaml:"data_root"`
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AuthConfig holds the operator account and session settings.
type AuthConfig struct {
	AdminUser          string   `yaml:"admin_user"`
	AdminPassHash      string   `yaml:"admin_pass_hash"`
	SecretKey          string   `yaml:"secret_key"`
	Scopes             []string `yaml:"scopes"`
	StoreRetryAttempts int      `yaml:"store_retry_attempts"`

	SessionTTL        time.Duration `yaml:"-"`
	StoreRetryBackoff time.Duration `yaml:"-"`
	RevocationSweep   time.Duration `yaml:"-"`

	SessionTTLRaw        string `yaml:"session_ttl"`
	StoreRetryBackoffRaw string `yaml:"store_retry_backoff"`
	RevocationSweepRaw   string `yaml:"revocation_sweep"`
}

// AuditConfig configures audit forwarding and the persisted key trail.
type AuditConfig struct {
	WebhookURL    string `yaml:"webhook_url"`
	WebhookHeader string `yaml:"webhook_header"` // "Name: value"
	Retention     int    `yaml:"retention"`

	WebhookTimeout    time.Duration `yaml:"-"`
	WebhookTimeoutRaw string        `yaml:"webhook_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Env: "dev",
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8000,
			APIRoot: "/api/v1",
		},
		Storage: StorageConfig{
			Backend:  "bbolt",
			DataRoot: "./data",
		},
		Auth: AuthConfig{
			AdminUser:          "admin",
			Scopes:             []string{"files:read", "files:write", "reddit:read", "reddit:write", "tasks:write"},
			StoreRetryAttempts: 3,
			SessionTTL:         24 * time.Hour,
			StoreRetryBackoff:  50 * time.Millisecond,
			RevocationSweep:    10 * time.Minute,
		},
		Audit: AuditConfig{
			Retention:      1000,
			WebhookTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty) and the DASH_* environment. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := cfg.decode(expandEnvVars(string(data))); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(cfg.Storage.DataRoot, "dashgate.db")
	}
	return cfg, nil
}

func (c *Config) decode(doc string) error {
	dec := yaml.NewDecoder(bytes.NewBufferString(doc))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or with the
// empty string when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// applyEnv overlays the DASH_* variables of the original deployment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DASH_ENV":             &c.Env,
		"DASH_HOST":            &c.Server.Host,
		"DASH_API_ROOT":        &c.Server.APIRoot,
		"DASH_CORS_ORIGIN":     &c.Server.CORSOrigin,
		"DASH_STORAGE_BACKEND": &c.Storage.Backend,
		"DASH_DATA_ROOT":       &c.Storage.DataRoot,
		"DASH_DB_PATH":         &c.Storage.Path,
		"DASH_POSTGRES_DSN":    &c.Storage.PostgresDSN,
		"DASH_ADMIN_USER":      &c.Auth.AdminUser,
		"DASH_ADMIN_PASS_HASH": &c.Auth.AdminPassHash,
		"DASH_SECRET_KEY":      &c.Auth.SecretKey,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	if v, ok := lookup("DASH_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DASH_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"session_ttl", cfg.Auth.SessionTTLRaw, &cfg.Auth.SessionTTL},
		{"store_retry_backoff", cfg.Auth.StoreRetryBackoffRaw, &cfg.Auth.StoreRetryBackoff},
		{"revocation_sweep", cfg.Auth.RevocationSweepRaw, &cfg.Auth.RevocationSweep},
		{"webhook_timeout", cfg.Audit.WebhookTimeoutRaw, &cfg.Audit.WebhookTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"dev", "prod", "test"}, c.Env) {
		return fmt.Errorf("env must be dev, prod or test, got %q", c.Env)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.APIRoot, "/") {
		return fmt.Errorf("server.api_root must start with /")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}

	switch c.Storage.Backend {
	case "memory":
	case "bbolt":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the bbolt backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	if c.Auth.AdminUser == "" {
		return fmt.Errorf("auth.admin_user is required")
	}
	if c.Auth.AdminPassHash == "" {
		return fmt.Errorf("auth.admin_pass_hash is required (see dashgate hash-password)")
	}
	if _, err := util.ParseArgon2idHash(c.Auth.AdminPassHash); err != nil {
		return fmt.Errorf("auth.admin_pass_hash: %w", err)
	}
	switch {
	case c.Auth.SecretKey == "" && c.Env == "prod":
		return fmt.Errorf("auth.secret_key is required in prod")
	case c.Auth.SecretKey != "" && len(c.Auth.SecretKey) < MinSecretKeyLen:
		return fmt.Errorf("auth.secret_key must be at least %d bytes", MinSecretKeyLen)
	}
	if len(c.Auth.Scopes) == 0 {
		return fmt.Errorf("auth.scopes must not be empty")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.Auth.StoreRetryAttempts < 1 {
		return fmt.Errorf("auth.store_retry_attempts must be at least 1")
	}
	if c.Auth.RevocationSweep <= 0 {
		return fmt.Errorf("auth.revocation_sweep must be positive")
	}

	if c.Audit.WebhookHeader != "" {
		if _, _, ok := c.Audit.Header(); !ok {
			return fmt.Errorf("audit.webhook_header must look like \"Name: value\"")
		}
	}
	if c.Audit.WebhookURL != "" && c.Audit.WebhookTimeout <= 0 {
		return fmt.Errorf("audit.webhook_timeout must be positive")
	}
	if c.Audit.Retention < 1 {
		return fmt.Errorf("audit.retention must be at least 1")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}

// EphemeralSecret reports whether the process will run on a random key
// because no secret key is configured outside prod.
func (c *Config) EphemeralSecret() bool {
	return c.Auth.SecretKey == "" && c.Env != "prod"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Header splits WebhookHeader into name and value.
func (a AuditConfig) Header() (string, string, bool) {
	name, value, ok := strings.Cut(a.WebhookHeader, ":")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if !ok || name == "" || value == "" {
		return "", "", false
	}
	return name, value, true
}
