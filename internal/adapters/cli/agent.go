package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewAgentCommand creates the agent command group for manually stepping
// individual agents. The dispatch loop runs them continuously; these
// commands exist for inspection and demos.
func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manually step the dispatch agents",
	}
	cmd.AddCommand(newAgentCycleCommand())
	cmd.AddCommand(newAgentMatchCommand())
	cmd.AddCommand(newAgentRoutesCommand())
	cmd.AddCommand(newAgentMoveCommand())
	return cmd
}

func newAgentCycleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one observer cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result, err := client.Cycle(ctx)
			if err != nil {
				return fmt.Errorf("observer cycle failed: %w", err)
			}
			fmt.Printf("✓ %s (%d events)\n", result.Message, result.EventsEmitted)
			return nil
		},
	}
}

func newAgentMatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Run one matcher pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			result, err := client.MatchLoads(ctx)
			if err != nil {
				return fmt.Errorf("matcher pass failed: %w", err)
			}

			fmt.Printf("✓ %s\n", result.Message)
			fmt.Printf("  Opportunities: %d\n", result.OpportunitiesAnalyzed)
			fmt.Printf("  Matches:       %d\n", result.MatchesCreated)
			for _, id := range result.TripIDs {
				fmt.Printf("  Trip started:  %s\n", id)
			}
			if verbose && result.AdvisorReasoning != "" {
				fmt.Printf("  Reasoning:\n%s\n", result.AdvisorReasoning)
			}
			return nil
		},
	}
}

func newAgentRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Run one route management pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			result, err := client.ManageRoutes(ctx)
			if err != nil {
				return fmt.Errorf("route management failed: %w", err)
			}

			fmt.Printf("✓ %s (%d trips reviewed)\n", result.Message, result.TripsReviewed)
			for _, d := range result.Decisions {
				fmt.Printf("  %-12s %-12s %s\n", d.TripID, d.VehicleID, d.Decision)
				if verbose && d.Reasoning != "" {
					fmt.Printf("    %s\n", d.Reasoning)
				}
			}
			return nil
		},
	}
}

func newAgentMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move",
		Short: "Advance motion one tick and show predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result, err := client.SimulateMovement(ctx)
			if err != nil {
				return fmt.Errorf("movement tick failed: %w", err)
			}

			fmt.Printf("✓ %s\n", result.Message)
			for _, p := range result.Predictions {
				fmt.Printf("  %-12s %-12s %5.1f%%  %6.1f km left  ETA %.1fh  %s\n",
					p.TripID, p.VehicleID, p.Progress, p.RemainingKm, p.EtaHours, p.OnTimeStatus)
			}
			return nil
		},
	}
}
