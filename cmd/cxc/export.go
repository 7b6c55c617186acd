package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitroscience/vitro-bi/internal/analytics"
	"github.com/vitroscience/vitro-bi/internal/app"
	"github.com/vitroscience/vitro-bi/internal/export"
)

func newExportCmd(open opener) *cobra.Command {
	var (
		out    string
		filter analytics.Filter
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the pending invoices, aging and ranking to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				dashboard, err := a.Analytics()
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = fmt.Sprintf("cxc-%s.xlsx", dashboard.Today().Format(time.DateOnly))
				}
				if err := writeWorkbook(ctx, dashboard, filter, path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default cxc-<date>.xlsx)")
	cmd.Flags().StringVar(&filter.Salesperson, "salesperson", "", "only invoices of this salesperson")
	cmd.Flags().StringVar(&filter.Query, "q", "", "debtor name or id substring")
	cmd.Flags().StringVar(&filter.DueFrom, "due-from", "", "earliest due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filter.DueTo, "due-to", "", "latest due date (YYYY-MM-DD)")
	return cmd
}

func writeWorkbook(ctx context.Context, dashboard *analytics.Service, f analytics.Filter, path string) error {
	book, err := export.Build(ctx, dashboard, f)
	if err != nil {
		return err
	}
	defer func() { _ = book.Close() }()
	if err := book.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
