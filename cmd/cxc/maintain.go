package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitroscience/vitro-bi/internal/app"
	"github.com/vitroscience/vitro-bi/pkg/db"
)

func newMaintainCmd(open opener) *cobra.Command {
	var backupDir string
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Back up the embedded store and compact it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				return maintain(ctx, cmd, a.DB, backupDir, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&backupDir, "backup-dir", "backups", "directory for timestamped SQLite backups")
	return cmd
}

// maintain backs up SQLite stores before compacting. Postgres is only
// vacuumed; its backups belong to the database host.
func maintain(ctx context.Context, cmd *cobra.Command, client *db.Client, backupDir string, now time.Time) error {
	if client.IsSQLite() {
		path, err := client.BackupSQLite(ctx, backupDir, now)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "backup written to", path)
	}
	if err := client.Vacuum(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "vacuum complete")
	return nil
}
