package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the source catalog",
	Long:  "Commands for listing, importing, and deactivating data sources.",
}

// -- sources list --

var sourcesListCategory string

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
		cat, _, _, err := initRegistries(ctx, st)
		if err != nil {
			return err
		}

		sources := cat.All()
		if sourcesListCategory != "" {
			sources = cat.FindByCategory(sourcesListCategory)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENDPOINT\tCATEGORIES\tCOST\tDISCOVERED\tACTIVE")
		for _, src := range sources {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%t\t%t\n",
				src.ID, src.Endpoint, strings.Join(src.Categories, ","),
				src.CostPerCall, src.Discovered, src.Active,
			)
		}
		return w.Flush()
	},
}

// -- sources import --

var sourcesImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Import sources from a YAML seed file",
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
		cat, _, _, err := initRegistries(ctx, st)
		if err != nil {
			return err
		}

		n, err := cat.ImportSeedFile(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("seed import complete",
			zap.String("file", args[0]),
			zap.Int("imported", n),
		)
		fmt.Printf("imported %d sources (%d total)\n", n, cat.Len())
		return nil
	},
}

// -- sources deactivate --

var sourcesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Deactivate a source, removing it from consensus rounds",
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
		cat, _, _, err := initRegistries(ctx, st)
		if err != nil {
			return err
		}

		if err := cat.Deactivate(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("deactivated %s\n", args[0])
		return nil
	},
}

func init() {
	sourcesListCmd.Flags().StringVar(&sourcesListCategory, "category", "", "filter by category")
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesImportCmd)
	sourcesCmd.AddCommand(sourcesDeactivateCmd)
	rootCmd.AddCommand(sourcesCmd)
}
