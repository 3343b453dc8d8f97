// Package cli implements fleetctl, the command line client for the fleet
// daemon's REST API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/fleetdispatch-go/internal/infrastructure/config"
)

var (
	// Global flags
	serverURL string
	verbose   bool
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetctl",
		Short: "FleetDispatch CLI - Interact with the fleet dispatch daemon",
		Long: `FleetDispatch CLI provides commands to inspect and drive the dispatch engine.
The CLI communicates with the daemon over its REST API.

Examples:
  fleetctl fleet init --vehicles 10 --loads 15
  fleetctl fleet metrics
  fleetctl vehicle list --status idle
  fleetctl vehicle get truck_003
  fleetctl load list --status available
  fleetctl events --type traffic_alert --limit 20
  fleetctl agent match
  fleetctl agent move`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getDefaultServerURL(),
		"Base URL of the fleet daemon")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose output")

	rootCmd.AddCommand(NewFleetCommand())
	rootCmd.AddCommand(NewVehicleCommand())
	rootCmd.AddCommand(NewLoadCommand())
	rootCmd.AddCommand(NewEventsCommand())
	rootCmd.AddCommand(NewAgentCommand())
	rootCmd.AddCommand(NewHealthCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}

// getDefaultServerURL resolves the daemon URL from the environment, the
// user config file, then the built-in default.
func getDefaultServerURL() string {
	if u := os.Getenv("FLEETDISPATCH_SERVER"); u != "" {
		return u
	}
	if handler, err := config.NewUserConfigHandler(); err == nil {
		if userCfg, err := handler.Load(); err == nil && userCfg.DefaultServerURL != "" {
			return userCfg.DefaultServerURL
		}
	}
	return "http://localhost:8000"
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
