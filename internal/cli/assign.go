package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newAssignCmd())
	rootCmd.AddCommand(newAssignmentsCmd())
}

func newAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <user-id> <experiment-id>",
		Short: "Get or create a user's variant assignment",
		Long: `Resolve the sticky variant for a user in a running experiment,
drawing one on first contact. Repeated calls return the same variant.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				a, err := engine.GetOrCreateAssignment(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("failed to assign: %w", err)
				}
				fmt.Printf("User %s -> variant '%s' (impressions: %d, conversions: %d)\n",
					a.UserID, a.Variant, a.Impressions, a.Conversions)
				return nil
			})
		},
	}
}

func newAssignmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assignments <user-id>",
		Short: "List a user's assignments across all running experiments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				assignments, err := engine.ListUserAssignments(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to list assignments: %w", err)
				}
				if len(assignments) == 0 {
					fmt.Println("No running experiments.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "EXPERIMENT\tVARIANT\tIMPR\tCONV\tREVENUE\tENGAGE")
				for _, uv := range assignments {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\t%d\n",
						uv.ExperimentName,
						uv.Variant,
						uv.Assignment.Impressions,
						uv.Assignment.Conversions,
						uv.Assignment.Revenue,
						uv.Assignment.Engagements,
					)
				}
				w.Flush()
				return nil
			})
		},
	}
}
