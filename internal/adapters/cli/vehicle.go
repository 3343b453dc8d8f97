package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewVehicleCommand creates the vehicle command group
func NewVehicleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Inspect vehicles",
	}
	cmd.AddCommand(newVehicleListCommand())
	cmd.AddCommand(newVehicleGetCommand())
	return cmd
}

func newVehicleListCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vehicles, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			result, err := client.Vehicles(ctx, status)
			if err != nil {
				return fmt.Errorf("failed to list vehicles: %w", err)
			}

			fmt.Printf("%d vehicles\n", result.Count)
			for _, v := range result.Vehicles {
				fmt.Printf("  %-12s %-18s %-14s fuel %5.1f%%  load %4.1f/%4.1ft\n",
					v.ID, v.Status, v.CurrentLocation.Name,
					v.FuelLevelPercent, v.CurrentLoadTons, v.CapacityTons)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by vehicle status")
	return cmd
}

func newVehicleGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <vehicle-id>",
		Short: "Show one vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			v, err := client.Vehicle(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch vehicle: %w", err)
			}

			fmt.Printf("Vehicle %s\n", v.ID)
			fmt.Printf("  Driver:       %s\n", v.DriverID)
			fmt.Printf("  Status:       %s\n", v.Status)
			fmt.Printf("  Location:     %s (%.4f, %.4f)\n", v.CurrentLocation.Name, v.CurrentLocation.Lat, v.CurrentLocation.Lng)
			fmt.Printf("  Fuel:         %.1f%%\n", v.FuelLevelPercent)
			fmt.Printf("  Load:         %.1f / %.1f tons\n", v.CurrentLoadTons, v.CapacityTons)
			fmt.Printf("  Hours left:   %.1f\n", v.MaxDrivingHoursRemaining)
			fmt.Printf("  Km today:     %.1f (%.1f loaded)\n", v.TotalKmToday, v.LoadedKmToday)
			fmt.Printf("  Utilization:  %.0f%%\n", v.UtilizationRate()*100)
			return nil
		},
	}
}
