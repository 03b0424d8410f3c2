package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	dochandler "docket/internal/document/handler"
	"docket/internal/document/models"
	"docket/internal/platform/httpserver"
	"docket/internal/platform/metrics"
	resolvehandler "docket/internal/resolve/handler"
	"docket/pkg/requestcontext"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry and resolution HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.app)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	r := chi.NewRouter()
	dochandler.New(a.documents, a.logger, a.http, cfg.Server.RequestTimeout).Register(r)
	resolvehandler.New(a.engine, a.planner, a.logger, a.http, cfg.Server.RequestTimeout).Register(r)
	r.Handle("/metrics", metrics.Handler(a.registry))

	srv := httpserver.New(cfg.Server.Addr, r)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(ctx, "starting docket", "addr", cfg.Server.Addr, "driver", cfg.Database.Driver)
		return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout)
	})
	if cfg.Retention.SweepInterval > 0 {
		g.Go(func() error {
			sweepLoop(ctx, a, cfg.Retention.SweepInterval)
			return nil
		})
	}
	return g.Wait()
}

// sweepLoop runs retention sweeps until ctx ends. Failures are logged and
// retried on the next tick.
func sweepLoop(ctx context.Context, a *app, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	ctx = requestcontext.WithActor(ctx, "retention-sweep")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		report, err := a.documents.Sweep(ctx, models.SweepRequest{})
		if err != nil {
			a.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
			continue
		}
		if report.Changed() || len(report.Failures) > 0 {
			a.logger.InfoContext(ctx, "retention sweep",
				"archived", len(report.Archived),
				"deleted", len(report.Deleted),
				"skipped", len(report.Skipped),
				"failures", len(report.Failures),
			)
		}
	}
}
