// Command migrate manages the embedded goose schema for both dialects.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vitroscience/vitro-bi/pkg/config"
	"github.com/vitroscience/vitro-bi/pkg/db"
	"github.com/vitroscience/vitro-bi/pkg/logger"
	"github.com/vitroscience/vitro-bi/pkg/migrate"
)

// target is an open database plus the logger scoped to this invocation.
type target struct {
	sql    *sql.DB
	driver string
	logg   *logger.Logger
	close  func() error
}

type connector func(ctx context.Context, cmd string) (*target, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(connect, time.Now).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(conn connector, now func() time.Time) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply, inspect and scaffold schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	dir := root.PersistentFlags().String("dir", migrate.DefaultDir, "migrations root holding one directory per dialect")

	for _, goose := range []struct{ use, short string }{
		{"up", "apply every pending migration"},
		{"down", "roll back the latest migration"},
		{"status", "print applied and pending migrations"},
	} {
		root.AddCommand(&cobra.Command{
			Use:   goose.use,
			Short: goose.short,
			Args:  cobra.NoArgs,
			RunE: withTarget(conn, func(ctx context.Context, t *target) error {
				return migrate.Run(ctx, t.sql, t.driver, goose.use)
			}),
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "to VERSION",
		Short: "migrate up or down to VERSION (YYYYMMDDHHMMSS)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTarget(conn, func(ctx context.Context, t *target) error {
				return migrate.MigrateToVersion(ctx, t.sql, t.driver, args[0])
			})(cmd, args)
		},
	})

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "drop every managed table and migrate up again",
		Args:  cobra.NoArgs,
	}
	confirm := rebuild.Flags().Bool("yes", false, "confirm that the live table and history ledger are discarded")
	rebuild.RunE = func(cmd *cobra.Command, args []string) error {
		if !*confirm {
			return errors.New("rebuild drops the live table and the history ledger; pass --yes to confirm")
		}
		return withTarget(conn, func(ctx context.Context, t *target) error {
			t.logg.Warn(ctx, "rebuilding schema")
			return migrate.Rebuild(ctx, t.sql, t.driver)
		})(cmd, args)
	}
	root.AddCommand(rebuild)

	root.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "scaffold an empty migration for every dialect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := migrate.CreateForDialects(*dir, args[0], now())
			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), "created", path)
			}
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "check filenames, goose headers and dialect parity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := migrate.ValidateDialects(*dir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations valid")
			return nil
		},
	})
	return root
}

func withTarget(conn connector, fn func(ctx context.Context, t *target) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		t, err := conn(cmd.Context(), cmd.Name())
		if err != nil {
			return err
		}
		defer t.close()
		return fn(cmd.Context(), t)
	}
}

func connect(ctx context.Context, cmd string) (*target, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      logOutput(),
	})
	ctx = logg.WithFields(ctx, map[string]any{"cmd": cmd, "driver": cfg.DB.Driver})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	return &target{sql: sqlDB, driver: client.Driver(), logg: logg, close: client.Close}, nil
}

// logOutput keeps stdout for goose's own status table.
func logOutput() io.Writer { return os.Stderr }
