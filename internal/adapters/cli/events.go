package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewEventsCommand creates the events command
func NewEventsCommand() *cobra.Command {
	var eventType string
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			result, err := client.Events(ctx, eventType, limit)
			if err != nil {
				return fmt.Errorf("failed to fetch events: %w", err)
			}

			fmt.Printf("%d events\n", result.Count)
			for _, e := range result.Events {
				line := fmt.Sprintf("  %s  %-24s", e.Timestamp.Format("15:04:05"), e.Type)
				if verbose {
					payload, _ := json.Marshal(e.Payload)
					line += "  " + string(payload)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&eventType, "type", "", "Filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum events to return")
	return cmd
}
