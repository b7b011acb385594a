package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newPauseCmd())
	rootCmd.AddCommand(newCompleteCmd())
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <experiment-id>",
		Short: "Start or resume an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				exp, err := engine.StartExperiment(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to start experiment: %w", err)
				}
				fmt.Printf("Experiment '%s' is running (started %s)\n", exp.Name, exp.StartDate.Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <experiment-id>",
		Short: "Pause a running experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				exp, err := engine.PauseExperiment(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to pause experiment: %w", err)
				}
				fmt.Printf("Experiment '%s' paused. New events are ignored until it is started again.\n", exp.Name)
				return nil
			})
		},
	}
}

func newCompleteCmd() *cobra.Command {
	var winner string

	cmd := &cobra.Command{
		Use:   "complete <experiment-id>",
		Short: "Complete an experiment and record its winner",
		Long: `Complete an experiment. With --winner the named variant is recorded;
otherwise the winner is derived from the primary goal metric.

Example:
  splitlab complete 1f0c2a3b --winner B`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				var explicit *string
				if winner != "" {
					explicit = &winner
				}
				exp, err := engine.CompleteExperiment(ctx, args[0], explicit)
				if err != nil {
					return fmt.Errorf("failed to complete experiment: %w", err)
				}
				if exp.Winner != nil {
					fmt.Printf("Experiment '%s' completed. Winner: %s\n", exp.Name, *exp.Winner)
				} else {
					fmt.Printf("Experiment '%s' completed with no winner (no variant has a positive %s value).\n",
						exp.Name, exp.Goals.Primary)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&winner, "winner", "w", "", "winning variant name (optional)")
	return cmd
}
