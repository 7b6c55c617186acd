// Command cxc is the operator CLI for the receivables snapshot.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitroscience/vitro-bi/internal/app"
)

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

type opener func(ctx context.Context) (*app.App, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(func(ctx context.Context) (*app.App, error) {
		return app.Open(ctx, "cxc")
	})
	if err := root.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, exit.msg)
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "cxc",
		Short:         "Accounts receivable snapshot operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newReconcileCmd(open),
		newExportCmd(open),
		newFreshnessCmd(open),
		newMaintainCmd(open),
	)
	return root
}

// withApp opens the shared resources for the duration of fn.
func withApp(cmd *cobra.Command, open opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.Logger.Error(ctx, "error closing resources", cerr)
		}
	}()
	return fn(ctx, a)
}
