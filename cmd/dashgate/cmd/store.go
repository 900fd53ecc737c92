package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dashgate/dashgate/auth"
	"github.com/dashgate/dashgate/internal/config"
	"github.com/dashgate/dashgate/internal/util"
	"github.com/dashgate/dashgate/storage"
	bboltstorage "github.com/dashgate/dashgate/storage/bbolt"
	"github.com/dashgate/dashgate/storage/memory"
	"github.com/dashgate/dashgate/storage/postgres"
)

// openRepository opens the configured backend. The returned func releases it.
func openRepository(ctx context.Context, cfg config.StorageConfig) (storage.Repository, func(), error) {
	switch cfg.Backend {
	case "memory":
		return memory.NewRepository(), func() {}, nil
	case "bbolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.Path, nil)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	case "postgres":
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

const devSecretFile = "dashgate.secret"

// buildKeyring derives the process keys from the configured secret. Without
// one, outside prod, the memory backend gets a random key and the durable
// backends a generated secret kept in devSecretFile next to their data, so
// sealed keys stay readable after a restart.
func buildKeyring(cfg *config.Config) (*auth.Keyring, error) {
	if !cfg.EphemeralSecret() {
		return auth.NewKeyring([]byte(cfg.Auth.SecretKey))
	}
	if cfg.Storage.Backend == "memory" {
		return auth.NewRandomKeyring()
	}
	secret, err := loadOrCreateSecret(devSecretPath(cfg.Storage))
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(secret)
	return auth.NewKeyring(secret)
}

func devSecretPath(sc config.StorageConfig) string {
	if sc.Backend == "bbolt" {
		return filepath.Join(filepath.Dir(sc.Path), devSecretFile)
	}
	return filepath.Join(sc.DataRoot, devSecretFile)
}

func loadOrCreateSecret(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		return decodeSecret(path, raw)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		// Another process created it first.
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return decodeSecret(path, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	secret, err := util.RandomBytes(auth.MinSecretKeyLen)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	_, werr := f.WriteString(util.B64URLEncode(secret) + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		util.WipeBytes(secret)
		return nil, fmt.Errorf("writing %s: %w", path, werr)
	}
	return secret, nil
}

func decodeSecret(path string, raw []byte) ([]byte, error) {
	secret, err := util.B64URLDecode(strings.TrimSpace(string(raw)))
	if err != nil || len(secret) < auth.MinSecretKeyLen {
		return nil, fmt.Errorf("%s does not hold a valid secret", path)
	}
	return secret, nil
}

func buildCore(cfg *config.Config, keyring *auth.Keyring, repo storage.Repository) (*auth.Core, error) {
	account := auth.Account{Username: cfg.Auth.AdminUser, PasswordHash: cfg.Auth.AdminPassHash}
	return auth.New(account, keyring, repo, cfg.Auth.Scopes,
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithRetryPolicy(auth.RetryPolicy{
			Attempts: cfg.Auth.StoreRetryAttempts,
			Backoff:  cfg.Auth.StoreRetryBackoff,
		}),
	)
}
