package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/vitroscience/vitro-bi/internal/app"
	"github.com/vitroscience/vitro-bi/internal/cron"
)

func newReconcileCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation now, under the worker lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				reconciler, err := a.Receivables(nil)
				if err != nil {
					return err
				}
				err = a.ReconcileOnce(ctx, reconciler)
				if errors.Is(err, cron.ErrLockHeld) {
					return &exitError{code: 3, msg: "a reconciliation is already running"}
				}
				return err
			})
		},
	}
}
