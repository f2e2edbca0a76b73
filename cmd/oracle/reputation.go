package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

var reputationCmd = &cobra.Command{
	Use:   "reputation",
	Short: "Inspect source reputation",
}

// -- reputation top --

var reputationTopLimit int

var reputationTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the best performing sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
		_, tracker, _, err := initRegistries(ctx, st)
		if err != nil {
			return err
		}

		return printReputation(tracker.Top(reputationTopLimit))
	},
}

// -- reputation show --

var reputationShowCmd = &cobra.Command{
	Use:   "show <source-id>",
	Short: "Show reputation for a single source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
		_, tracker, _, err := initRegistries(ctx, st)
		if err != nil {
			return err
		}

		return printReputation([]model.ReputationRecord{tracker.Get(args[0])})
	},
}

func printReputation(records []model.ReputationRecord) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tQUERIES\tCORRECT\tWRONG\tSUCCESS\tAVG MS\tAVG CONF")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.3f\t%.0f\t%.3f\n",
			rec.SourceID, rec.TotalQueries, rec.CorrectCount, rec.WrongCount,
			rec.SuccessRate, rec.AvgResponseTimeMs, rec.AvgConfidence,
		)
	}
	return w.Flush()
}

func init() {
	reputationTopCmd.Flags().IntVar(&reputationTopLimit, "limit", 10, "number of sources to show")
	reputationCmd.AddCommand(reputationTopCmd)
	reputationCmd.AddCommand(reputationShowCmd)
	rootCmd.AddCommand(reputationCmd)
}
