package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "perp-mirror",
	Short: "Cross-venue perpetual futures order mirroring engine",
	Long: `perp-mirror watches the trigger-order book of a source perpetual
futures account and replicates it onto a mirror venue: new trigger orders
are placed with proportionally scaled margin, disappeared orders are
classified as filled or canceled and acted on, and positions that drift
out of correspondence are closed.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
