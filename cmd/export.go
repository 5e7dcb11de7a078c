package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/juristech/process-extract/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Export all stored cases to an XLSX workbook",
	Long:  "Writes three sheets, Cases, Timeline and Evidence, joined by case_id.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		stats, err := export.NewExporter(st).WriteWorkbook(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("wrote %s: %d cases, %d events, %d evidence items\n",
			args[0], stats.Cases, stats.Events, stats.Evidence)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
