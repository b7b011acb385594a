package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

func init() {
	rootCmd.AddCommand(newListCmd())
}

func newListCmd() *cobra.Command {
	var (
		status  string
		expType string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Long:  `List experiments with their status, variants and winner.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *experiment.Service) error {
				experiments, err := engine.ListExperiments(ctx, store.Filter{
					Status: store.ExperimentStatus(status),
					Type:   store.ExperimentType(expType),
				})
				if err != nil {
					return fmt.Errorf("failed to list experiments: %w", err)
				}

				if len(experiments) == 0 {
					fmt.Println("No experiments yet.")
					fmt.Println()
					fmt.Println("Create one with:")
					fmt.Println("  splitlab create my-experiment --variants \"A:50,B:50\"")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tVARIANTS\tWINNER\tCREATED")

				for _, exp := range experiments {
					winner := "-"
					if exp.Winner != nil {
						winner = *exp.Winner
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						shortID(exp.ID),
						exp.Name,
						exp.Type,
						strings.ToUpper(string(exp.Status)),
						len(exp.Variants),
						winner,
						exp.CreatedAt.Format("2006-01-02"),
					)
				}

				w.Flush()
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (draft|running|paused|completed)")
	cmd.Flags().StringVarP(&expType, "type", "t", "", "filter by type")

	return cmd
}
