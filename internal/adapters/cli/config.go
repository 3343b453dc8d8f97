package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/fleetdispatch-go/internal/infrastructure/config"
)

// NewConfigCommand creates the config command group for user preferences
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fleetctl preferences",
	}
	cmd.AddCommand(newConfigSetServerCommand())
	cmd.AddCommand(newConfigShowCommand())
	return cmd
}

func newConfigSetServerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-server <url>",
		Short: "Set the default daemon URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := config.NewUserConfigHandler()
			if err != nil {
				return err
			}
			userCfg, err := handler.Load()
			if err != nil {
				return err
			}
			userCfg.DefaultServerURL = args[0]
			if err := handler.Save(userCfg); err != nil {
				return err
			}
			fmt.Printf("✓ Default server set to %s\n", args[0])
			return nil
		},
	}
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := config.NewUserConfigHandler()
			if err != nil {
				return err
			}
			userCfg, err := handler.Load()
			if err != nil {
				return err
			}
			fmt.Printf("Default server: %s\n", userCfg.DefaultServerURL)
			fmt.Printf("Effective server: %s\n", serverURL)
			return nil
		},
	}
}
