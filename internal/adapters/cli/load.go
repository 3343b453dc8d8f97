package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewLoadCommand creates the load command group
func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Inspect loads on the board",
	}
	cmd.AddCommand(newLoadListCommand())
	cmd.AddCommand(newLoadGetCommand())
	return cmd
}

func newLoadListCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loads, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			result, err := client.Loads(ctx, status)
			if err != nil {
				return fmt.Errorf("failed to list loads: %w", err)
			}

			fmt.Printf("%d loads\n", result.Count)
			for _, l := range result.Loads {
				assigned := ""
				if l.AssignedVehicleID != "" {
					assigned = " -> " + l.AssignedVehicleID
				}
				fmt.Printf("  %-12s %-10s %s to %s  %.0ft @ %.0f/km%s\n",
					l.ID, l.Status, l.Origin.Name, l.Destination.Name,
					l.WeightTons, l.OfferedRatePerKm, assigned)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by load status")
	return cmd
}

func newLoadGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <load-id>",
		Short: "Show one load",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			l, err := client.Load(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch load: %w", err)
			}

			fmt.Printf("Load %s\n", l.ID)
			fmt.Printf("  Status:       %s\n", l.Status)
			fmt.Printf("  Route:        %s -> %s (%.0f km)\n", l.Origin.Name, l.Destination.Name, l.DistanceKm)
			fmt.Printf("  Weight:       %.1f tons\n", l.WeightTons)
			fmt.Printf("  Rate:         %.0f per km\n", l.OfferedRatePerKm)
			fmt.Printf("  Pickup by:    %s\n", l.PickupWindowEnd.Format(time.RFC3339))
			fmt.Printf("  Deliver by:   %s\n", l.DeliveryDeadline.Format(time.RFC3339))
			if l.AssignedVehicleID != "" {
				fmt.Printf("  Assigned to:  %s\n", l.AssignedVehicleID)
			}
			return nil
		},
	}
}
