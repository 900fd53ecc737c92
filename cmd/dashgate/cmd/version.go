package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set with -ldflags "-X .../cmd.Version=..." at build time.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dashgate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
