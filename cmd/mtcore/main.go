package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/mtcore/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mtcore",
	Short: "mtcore - MTProto client-side networking engine",
	Long: `mtcore - an MTProto client-side networking engine.

mtcore owns session/auth-key state, the request registry, and the
five-phase scheduler pass that drives traffic across a datacenter's
connections. This binary is a diagnostic and operations shell around
that engine, not the engine's host application.

Available commands:
  config   - Show and validate the bootstrap configuration
  status   - Live dashboard of datacenters, connections, and requests
  inspect  - Dump a diagnostic snapshot of a freshly built instance
  version  - Show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() != "show" {
			if err := logger.Initialize(false); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
