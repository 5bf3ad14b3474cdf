package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"botlog/internal/app"
	logx "botlog/pkg/logx"
)

var stopTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record chat events read from stdin",
	Long: `Read newline-delimited JSON chat events from stdin and write them to the
per-channel logs until EOF or SIGINT/SIGTERM.

Each line looks like:
  {"channel":"#go","nick":"alice","message":"hi","at":"2024-05-01T10:00:00Z"}`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "grace period for shutdown")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		return errors.Wrap(err, "error creating application")
	}
	if err := a.Start(ctx); err != nil {
		return errors.Wrap(err, "error starting application")
	}

	fed := make(chan error, 1)
	go func() {
		n, err := a.Feed(ctx, cmd.InOrStdin())
		a.Logger().Info("input finished", logx.Int("events", n))
		fed <- err
	}()

	var (
		reason app.StopReason
		runErr error
	)
	select {
	case <-ctx.Done():
		reason = app.StopSignal
	case runErr = <-fed:
		reason = app.StopInputEOF
		if runErr != nil {
			reason = app.StopFatalError
		}
	case <-a.Done():
		reason = app.StopFatalError
		runErr = a.Err()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	return errors.CombineErrors(runErr, a.Stop(stopCtx, reason))
}
