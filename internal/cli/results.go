package cli

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/stats"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Show detailed results for an experiment",
	Long:  `Show per-variant results, confidence intervals and the significance verdict.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withEngine(func(ctx context.Context, engine *experiment.Service) error {
		results, err := engine.GetResults(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get results: %w", err)
		}

		// Print header
		fmt.Printf("EXPERIMENT: %s\n", results.Name)
		fmt.Printf("STATUS: %s\n", results.Status)
		fmt.Printf("PRIMARY GOAL: %s\n", results.PrimaryGoal)
		if results.Winner != nil {
			fmt.Printf("WINNER: %s\n", *results.Winner)
		}
		fmt.Println()

		// Print table
		fmt.Println("VARIANT           USERS    IMPR     CONV     RATE     AVG REV  95% CI")
		fmt.Println(strings.Repeat("─", 72))

		for _, v := range results.Variants {
			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
			if v.Impressions == 0 {
				ciStr = "N/A"
			}

			name := v.Variant
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-7d  %-7d  %-7d  %-7s  %-7.2f  %s\n",
				name,
				v.Users,
				v.Impressions,
				v.Conversions,
				fmt.Sprintf("%.2f%%", v.ConversionRate),
				v.AverageRevenue,
				ciStr,
			)
		}

		fmt.Println()

		sig := results.Significance
		if sig.Variation == nil || sig.Control == nil {
			fmt.Println("Statistical significance: need at least 2 variants")
			return nil
		}

		cdfConfidence := stats.NormalCDF(math.Abs(sig.ZScore)) * 100
		if sig.IsSignificant {
			fmt.Printf("Statistical significance: %.0f%% confidence level, \"%s\" beats \"%s\" (z=%.2f, ~%.1f%%)\n",
				sig.ConfidenceLevel, sig.Variation.Variant, sig.Control.Variant, sig.ZScore, cdfConfidence)
			fmt.Printf("Improvement over control: %+.1f%%\n", sig.Improvement)
		} else {
			fmt.Printf("Statistical significance: not significant yet (%.0f%% confidence level, z=%.2f)\n",
				sig.ConfidenceLevel, sig.ZScore)
		}
		return nil
	})
}
