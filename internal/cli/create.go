package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		variants string
		expType  string
		goal     string
		audience string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new experiment in draft status.

Variants are comma-separated, either "name:allocation" pairs summing to 100
or bare names sharing traffic evenly.

Examples:
  splitlab create homepage-cta --variants "A:50,B:50"
  splitlab create checkout-flow --variants "control,streamlined" --type checkout --goal revenue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			variantList, err := parseVariants(variants)
			if err != nil {
				return err
			}

			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				exp, err := engine.CreateExperiment(ctx, experiment.CreateParams{
					Name:           name,
					Type:           store.ExperimentType(expType),
					Variants:       variantList,
					TargetAudience: store.TargetAudience{Type: audience},
					Goals:          store.Goals{Primary: store.Goal(goal)},
				})
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (%s) with %d variants:\n", exp.Name, exp.ID, len(exp.Variants))
				for _, v := range exp.Variants {
					fmt.Printf("  %-20s %.1f%%\n", v.Name, v.TrafficAllocation)
				}
				fmt.Printf("Primary goal: %s\n", exp.Goals.Primary)
				fmt.Println("\nStatus is draft. Run 'splitlab start' to begin assigning users.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variants (required)")
	cmd.Flags().StringVarP(&expType, "type", "t", "other", "experiment type (product|category|checkout|homepage|other)")
	cmd.Flags().StringVarP(&goal, "goal", "g", "conversion", "primary goal (conversion|revenue|engagement|retention|other)")
	cmd.Flags().StringVar(&audience, "audience", "all", "target audience (all|newUsers|returningUsers|specificUsers)")
	cmd.MarkFlagRequired("variants")

	return cmd
}
