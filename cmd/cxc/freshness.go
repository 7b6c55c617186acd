package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitroscience/vitro-bi/internal/analytics"
	"github.com/vitroscience/vitro-bi/internal/app"
)

const exitStale = 2

func newFreshnessCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "freshness",
		Short: "Report the latest successful snapshot; exits 2 when it is not from today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				dashboard, err := a.Analytics()
				if err != nil {
					return err
				}
				fresh, err := dashboard.Freshness(ctx)
				if err != nil {
					return err
				}
				return reportFreshness(cmd, fresh)
			})
		},
	}
}

func reportFreshness(cmd *cobra.Command, fresh *analytics.Freshness) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(fresh); err != nil {
		return err
	}
	if fresh.Stale {
		last := fresh.SnapshotDate
		if last == "" {
			last = "never"
		}
		return &exitError{code: exitStale, msg: fmt.Sprintf("snapshot is stale: last %s, today %s", last, fresh.Today)}
	}
	return nil
}
