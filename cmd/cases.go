package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/juristech/process-extract/internal/model"
	"github.com/juristech/process-extract/internal/store"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Inspect persisted case extractions",
	Long:  "Commands for listing and viewing cases already extracted and stored.",
}

// -- cases list --

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted cases, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		summaries, err := st.ListCases(ctx, store.CaseFilter{Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "cases list")
		}

		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No cases found.")
			return nil
		}

		formatCasesList(os.Stdout, summaries)
		return nil
	},
}

// -- cases get --

var casesGetCmd = &cobra.Command{
	Use:   "get <case-id>",
	Short: "Show the full stored extraction for a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		rec, err := st.GetCase(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "cases get")
		}
		if rec == nil {
			return eris.Errorf("case %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	casesListCmd.Flags().Int("limit", store.DefaultListLimit, "max number of cases to display")
	casesListCmd.Flags().Int("offset", 0, "number of cases to skip")

	casesCmd.AddCommand(casesListCmd)
	casesCmd.AddCommand(casesGetCmd)
	rootCmd.AddCommand(casesCmd)
}

// formatCasesList writes a tabular list of case summaries to w.
func formatCasesList(out io.Writer, summaries []model.CaseSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CASE_ID\tEVENTS\tEVIDENCE\tPERSISTED\tRESUME")
	_, _ = fmt.Fprintln(w, "-------\t------\t--------\t---------\t------")

	for _, s := range summaries {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			truncate(s.CaseID, 36),
			s.EventCount,
			s.EvidenceCount,
			s.PersistedAt.Format("2006-01-02 15:04"),
			truncate(s.Resume, 60),
		)
	}
	_ = w.Flush()
}

// truncate shortens s for compact display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
