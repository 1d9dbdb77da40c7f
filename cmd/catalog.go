package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fin-import/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the concept catalog",
}

var catalogLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Upsert catalog entries from a YAML seed file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		entries, err := catalog.LoadFile(file)
		if err != nil {
			return err
		}
		// reject duplicate codes before touching the store
		if _, err := catalog.New(entries); err != nil {
			return err
		}

		st, err := openStore(ctx, "catalog")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertConcepts(ctx, entries)
		if err != nil {
			return eris.Wrap(err, "catalog load")
		}
		zap.L().Info("catalog loaded", zap.String("file", file), zap.Int64("entries", n))
		fmt.Fprintf(os.Stdout, "%d concepts loaded\n", n)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "catalog")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cat, err := catalog.Load(ctx, st)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tNAME\tGROUP\tMANDATORY\tSIGN")
		for _, e := range cat.Entries() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", e.Code, e.Name, e.Group, e.Mandatory, e.Sign)
		}
		return tw.Flush()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context(), "migrate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	catalogLoadCmd.Flags().String("file", "concepts.yaml", "YAML seed file")
	catalogCmd.AddCommand(catalogLoadCmd, catalogListCmd)
	rootCmd.AddCommand(catalogCmd, migrateCmd)
}
