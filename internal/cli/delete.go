package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newDeleteCmd())
}

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <experiment-id>",
		Short: "Delete an experiment and all its assignments",
		Long: `Delete an experiment. All user assignments are removed with it.
Running experiments cannot be deleted; pause or complete them first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Delete experiment %s and all its assignments", args[0]),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					if err == promptui.ErrInterrupt {
						os.Exit(0)
					}
					fmt.Println("Aborted.")
					return nil
				}
			}

			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				exp, err := engine.DeleteExperiment(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to delete experiment: %w", err)
				}
				fmt.Printf("Deleted experiment '%s' and its assignments.\n", exp.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
