package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

func init() {
	rootCmd.AddCommand(newGetCmd())
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <experiment-id>",
		Short: "Show an experiment's configuration and counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				exp, err := engine.GetExperiment(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get experiment: %w", err)
				}

				fmt.Printf("EXPERIMENT: %s\n", exp.Name)
				fmt.Printf("ID: %s\n", exp.ID)
				fmt.Printf("TYPE: %s\n", exp.Type)
				fmt.Printf("STATUS: %s\n", strings.ToUpper(string(exp.Status)))
				if exp.StartDate != nil {
					fmt.Printf("STARTED: %s\n", exp.StartDate.Format("2006-01-02 15:04:05"))
				}
				if exp.EndDate != nil {
					fmt.Printf("ENDED: %s\n", exp.EndDate.Format("2006-01-02 15:04:05"))
				}
				fmt.Printf("PRIMARY GOAL: %s\n", exp.Goals.Primary)
				if exp.Winner != nil {
					fmt.Printf("WINNER: %s\n", *exp.Winner)
				}

				fmt.Println()
				fmt.Println("VARIANT           ALLOC    IMPR     CONV     REVENUE")
				fmt.Println(strings.Repeat("─", 56))
				for _, v := range exp.Variants {
					fmt.Printf("%-16s  %-7s  %-7.0f  %-7.0f  %.2f\n",
						v.Name,
						fmt.Sprintf("%.1f%%", v.TrafficAllocation),
						exp.Results[store.MetricImpressions][v.Name],
						exp.Results[store.MetricConversions][v.Name],
						exp.Results[store.MetricRevenue][v.Name],
					)
				}
				return nil
			})
		},
	}
}
