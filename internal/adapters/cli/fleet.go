package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

// NewFleetCommand creates the fleet command group
func NewFleetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Initialize and inspect the fleet",
	}
	cmd.AddCommand(newFleetInitCommand())
	cmd.AddCommand(newFleetMetricsCommand())
	return cmd
}

func newFleetInitCommand() *cobra.Command {
	var numVehicles, numLoads int

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Reset and seed the fleet",
		Long:  `Reset the engine state and seed it with generated vehicles and loads.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result, err := client.Initialize(ctx, numVehicles, numLoads)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}

			fmt.Printf("✓ %s\n", result.Message)
			fmt.Printf("  Vehicles: %d\n", result.VehiclesCreated)
			fmt.Printf("  Loads:    %d\n", result.LoadsCreated)
			return nil
		},
	}

	cmd.Flags().IntVar(&numVehicles, "vehicles", 10, "Number of vehicles to seed")
	cmd.Flags().IntVar(&numLoads, "loads", 15, "Number of loads to seed")
	return cmd
}

func newFleetMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show fleet KPIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			metrics, err := client.Metrics(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch metrics: %w", err)
			}

			keys := make([]string, 0, len(metrics))
			for k := range metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fmt.Println("Fleet metrics:")
			for _, k := range keys {
				switch v := metrics[k].(type) {
				case float64:
					fmt.Printf("  %-28s %.2f\n", k, v)
				default:
					fmt.Printf("  %-28s %v\n", k, v)
				}
			}
			return nil
		},
	}
}
