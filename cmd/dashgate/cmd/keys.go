package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dashgate/dashgate/auth"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect and revoke API keys while the server is stopped",
	Long: `Operates directly on the configured store. The bbolt backend holds a
file lock, so stop the server first.`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOfflineCore(cmd.Context(), func(core *auth.Core) error {
			printKeys(cmd.OutOrStdout(), core.Keys.List(core.Account))
			return nil
		})
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke KEY_ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOfflineCore(cmd.Context(), func(core *auth.Core) error {
			k, err := core.Keys.Revoke(core.Account, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("revoked"), k.KeyID)
			return nil
		})
	},
}

// withOfflineCore opens the configured store and builds the core over it.
// Without a configured secret it needs the generated one the server left
// beside the data.
func withOfflineCore(ctx context.Context, fn func(*auth.Core) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if cfg.Storage.Backend == "memory" {
		return errors.New("the memory backend holds no keys outside the server process")
	}
	if cfg.EphemeralSecret() {
		if _, err := os.Stat(devSecretPath(cfg.Storage)); err != nil {
			return fmt.Errorf("auth.secret_key is required to read stored keys: %w", err)
		}
	}
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
	return fn(core)
}

func printKeys(w io.Writer, keys []auth.APIKey) {
	if len(keys) == 0 {
		fmt.Fprintln(w, "no keys")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY ID\tSCOPES\tCREATED\tSTATUS")
	for _, k := range keys {
		status := color.GreenString("active")
		if k.Revoked() {
			status = color.RedString("revoked %s", k.RevokedAt.UTC().Format(time.RFC3339))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k.KeyID, strings.Join(k.Scopes, " "), k.CreatedAt.UTC().Format(time.RFC3339), status)
	}
	tw.Flush()
}

func init() {
	keysCmd.AddCommand(keysListCmd, keysRevokeCmd)
	rootCmd.AddCommand(keysCmd)
}
