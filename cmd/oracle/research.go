package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/consensus"
)

var researchCmd = &cobra.Command{
	Use:   "research <question>",
	Short: "Answer a yes/no question by source consensus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []consensus.CallOption
		if cmd.Flags().Changed("budget") {
			budget, _ := cmd.Flags().GetFloat64("budget")
			opts = append(opts, consensus.WithBudget(budget))
		}
		if cmd.Flags().Changed("min-sources") {
			n, _ := cmd.Flags().GetInt("min-sources")
			opts = append(opts, consensus.WithMinSources(n))
		}
		if cmd.Flags().Changed("allow-discovery") {
			allow, _ := cmd.Flags().GetBool("allow-discovery")
			opts = append(opts, consensus.WithDiscovery(allow))
		}

		result, err := env.Engine.ResearchQuestion(ctx, args[0], opts...)
		if err != nil {
			return eris.Wrap(err, "research")
		}

		zap.L().Info("research complete",
			zap.String("question_hash", result.QuestionHash),
			zap.Bool("outcome", result.Outcome),
			zap.Float64("confidence", result.Confidence),
			zap.Float64("total_cost", result.TotalCost),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	researchCmd.Flags().Float64("budget", 0, "spend cap for this call (overrides config)")
	researchCmd.Flags().Int("min-sources", 0, "minimum source count for this call (overrides config)")
	researchCmd.Flags().Bool("allow-discovery", false, "enable or disable discovery for this call (overrides config)")
	rootCmd.AddCommand(researchCmd)
}
