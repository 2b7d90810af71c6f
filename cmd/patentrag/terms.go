package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/engine/terminology"
)

func termsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terms",
		Short: "Manage the terminology store",
	}
	cmd.AddCommand(termsImportCmd(a), termsListCmd(a))
	return cmd
}

func termsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <terms.csv>",
		Short: "Import terminology from CSV",
		Long: `Imports rows with the header source_term,target_term,domain,verified,usage_count,notes.
Existing (source_term, domain) pairs are updated. Invalid rows are reported
with their line number and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := a.openTerms(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			stats, err := terminology.ImportCSV(ctx, f, store, a.logger)
			fmt.Fprintf(cmd.OutOrStdout(), "rows: %d | imported: %d | skipped: %d | errors: %d\n",
				stats.Rows, stats.Imported, stats.Skipped, stats.Errors)
			return err
		},
	}
}

func termsListCmd(a *app) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List terminology entries for a domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := domain.ParseDomain(tag)
			if d == domain.DomainUnknown {
				return fmt.Errorf("unknown domain %q", tag)
			}
			ctx := cmd.Context()
			store, closeStore, err := a.openTerms(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := store.Lookup(ctx, d)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tTARGET\tVERIFIED\tUSAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%g\n", e.Source, e.Target, e.Verified, e.Weight)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&tag, "domain", "d", string(domain.DomainGeneral), "domain to list (semiconductor, mechanical, general)")
	return cmd
}
