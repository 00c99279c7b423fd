// Package cmd implements the exchanged command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for exchanged
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "exchanged",
		Short: "Simulated options exchange",
		Long: `exchanged runs a simulated options exchange for trading games:
a price-time priority matching engine with role-based constraints,
market phases with opening auctions, and a REST + WebSocket surface
for trading bots.`,
	}

	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}
