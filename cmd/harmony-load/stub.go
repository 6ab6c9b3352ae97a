package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpAdapter "github.com/skorper/harmony/internal/adapter/http"
)

const shutdownTimeout = 10 * time.Second

func newStubCmd() *cobra.Command {
	opts := httpAdapter.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "serve a local stand-in for the coverages API",
		Long: `stub serves the coverages rangeset and job status routes in memory so a run
can be smoke tested with --base-url http://localhost:3000.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			return serveStub(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Addr, "addr", opts.Addr, "listen address")
	f.IntVar(&opts.StepPolls, "step-polls", opts.StepPolls, "status reads before a job advances one state")
	f.StringSliceVar(&opts.AsyncCollections, "async-collection", opts.AsyncCollections, "collections that always answer asynchronously")
	f.StringSliceVar(&opts.SyncCollections, "sync-collection", opts.SyncCollections, "collections that always answer synchronously")
	f.StringSliceVar(&opts.FailCollections, "fail-collection", nil, "collections whose jobs end failed")
	return cmd
}

func serveStub(ctx context.Context, opts httpAdapter.Options) error {
	srv := httpAdapter.NewServer(opts)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down stub")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
