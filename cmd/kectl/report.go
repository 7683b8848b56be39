package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/BlueBird-project/ke-client-go/pkg/reports"
)

var (
	flagReportType  string
	flagReportSince time.Duration
	flagReportKI    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a CSV report of the SQLite journal to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		b, err := openBackends(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer b.Close()
		if b.sqlite == nil {
			return fmt.Errorf("reports need a SQLite journal, set KE_JOURNAL_PATH")
		}

		gen, err := reports.NewReportGenerator(reports.ReportType(flagReportType), b.sqlite)
		if err != nil {
			return err
		}
		params := reports.ReportParams{KnowledgeBaseID: s.KnowledgeBaseID, Interaction: flagReportKI}
		if flagReportSince > 0 {
			params.Start = time.Now().Add(-flagReportSince)
		}
		r, err := gen.Generate(cmd.Context(), params)
		if err != nil {
			return err
		}
		_, err = io.Copy(cmd.OutOrStdout(), r)
		return err
	},
}

func init() {
	reportCmd.Flags().StringVar(&flagReportType, "type", string(reports.ReportTypeInteractions), "report type: exchange_log|interactions")
	reportCmd.Flags().DurationVar(&flagReportSince, "since", 0, "only events newer than this")
	reportCmd.Flags().StringVar(&flagReportKI, "interaction", "", "only this role-qualified interaction")
}
