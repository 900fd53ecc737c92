package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/dashgate/dashgate/api"
	"github.com/dashgate/dashgate/internal/config"
)

var serverFlags struct {
	host    string
	port    int
	dbPath  string
	backend string
	tlsCert string
	tlsKey  string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the authorization gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyServerFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		logger := newLogger(cfg.Logging, os.Stderr)
		slog.SetDefault(logger)
		switch {
		case cfg.EphemeralSecret() && cfg.Storage.Backend == "memory":
			logger.Warn("no secret key configured, using a random key; sessions will not survive a restart")
		case cfg.EphemeralSecret():
			logger.Warn("no secret key configured, using a generated development secret", "path", devSecretPath(cfg.Storage))
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		repo, closeRepo, err := openRepository(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
		}
		defer closeRepo()

		keyring, err := buildKeyring(cfg)
		if err != nil {
			return err
		}

		core, err := buildCore(cfg, keyring, repo)
		if err != nil {
			return err
		}
		go core.Revoked.Run(ctx, cfg.Auth.RevocationSweep)

		a, err := api.New(core, repo,
			api.WithLogger(logger.With("component", "audit")),
			api.WithAlertFunc(func(e api.AlertEvent) {
				logger.Warn("security alert", "type", e.Type, "count", e.Count, "threshold", e.Threshold, "message", e.Message)
			}),
			api.WithAuditWebhook(auditWebhookConfig(cfg.Audit)),
			api.WithCORSOrigin(cfg.Server.CORSOrigin),
			api.WithAPIRoot(cfg.Server.APIRoot),
			api.WithAuditRetention(cfg.Audit.Retention),
		)
		if err != nil {
			return err
		}
		defer a.Close()

		r := chi.NewRouter()
		r.Use(middleware.RealIP)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount(cfg.Server.APIRoot, a.Router())

		server := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		useTLS := cfg.Server.TLSCert != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCert, cfg.Server.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out)
		printField(out, "listen", cfg.Addr())
		printField(out, "api root", cfg.Server.APIRoot)
		printField(out, "storage", cfg.Storage.Backend)
		printField(out, "tls", useTLS)
		fmt.Fprintln(out)

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host = serverFlags.host
	}
	if f.Changed("port") {
		cfg.Server.Port = serverFlags.port
	}
	if f.Changed("db") {
		cfg.Storage.Path = serverFlags.dbPath
	}
	if f.Changed("backend") {
		cfg.Storage.Backend = serverFlags.backend
	}
	if f.Changed("tls-cert") {
		cfg.Server.TLSCert = serverFlags.tlsCert
	}
	if f.Changed("tls-key") {
		cfg.Server.TLSKey = serverFlags.tlsKey
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.StringVar(&serverFlags.host, "host", "", "Address to bind")
	f.IntVarP(&serverFlags.port, "port", "p", 0, "Port to listen on")
	f.StringVar(&serverFlags.dbPath, "db", "", "Path to the bbolt database")
	f.StringVar(&serverFlags.backend, "backend", "", "Storage backend: memory, bbolt or postgres")
	f.StringVar(&serverFlags.tlsCert, "tls-cert", "", "Path to TLS certificate file")
	f.StringVar(&serverFlags.tlsKey, "tls-key", "", "Path to TLS key file")
}

func auditWebhookConfig(ac config.AuditConfig) api.AuditWebhookConfig {
	name, value, _ := ac.Header()
	return api.AuditWebhookConfig{
		URL:         ac.WebhookURL,
		HeaderName:  name,
		HeaderValue: value,
		Client:      &http.Client{Timeout: ac.WebhookTimeout},
	}
}
