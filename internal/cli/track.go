package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newTrackCmd())
}

func newTrackCmd() *cobra.Command {
	var amount float64

	cmd := &cobra.Command{
		Use:   "track <user-id> <experiment-id> <event>",
		Short: "Record an event against a user's assignment",
		Long: `Record an impression, conversion, revenue or engagement event.
Events against experiments that are not running are dropped silently.

Examples:
  splitlab track u123 1f0c2a3b impression
  splitlab track u123 1f0c2a3b revenue --amount 19.99`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				a, err := engine.TrackEvent(ctx, args[0], args[1], experiment.Event{
					Type:   experiment.EventType(args[2]),
					Amount: amount,
				})
				if err != nil {
					return fmt.Errorf("failed to track event: %w", err)
				}
				if a == nil {
					fmt.Println("Event dropped: experiment is not running.")
					return nil
				}
				fmt.Printf("Tracked %s for user %s on variant '%s' (impressions: %d, conversions: %d, revenue: %.2f, engagements: %d)\n",
					args[2], a.UserID, a.Variant, a.Impressions, a.Conversions, a.Revenue, a.Engagements)
				return nil
			})
		},
	}

	cmd.Flags().Float64VarP(&amount, "amount", "a", 0, "revenue amount (revenue events only)")
	return cmd
}
