package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashgate/dashgate/api"
	"github.com/dashgate/dashgate/auth"
)

var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "Print the scopes API keys can be issued with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := auth.NewRegistry(cfg.Auth.Scopes...)
		if err != nil {
			return err
		}
		if err := registry.Register(api.OpsReadScope); err != nil {
			return err
		}
		for _, s := range registry.Scopes() {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scopesCmd)
}
