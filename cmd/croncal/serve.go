package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/api"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/config"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cron"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cronjob"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/metrics"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the calendar HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd.Context())
		},
	}
}

func (c *cli) runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logConfigWarnings(logger, cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize metrics sink (optional)
	var sink metrics.Sink
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		sink = metrics.NewPrometheusSink(reg, logger)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		logger.Info("croncal: metrics enabled", zap.String("path", cfg.MetricsPath))
	} else {
		sink = metrics.NewNoopSink()
	}

	p, err := openProvider(ctx, cfg, logger, sink)
	if err != nil {
		return err
	}
	defer p.Close()

	srv, err := newServer(cfg, p, sink, metricsHandler, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("croncal: http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("croncal: stopping http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "http server shutdown")
		}
		logger.Info("croncal: http server stopped")
		return nil
	})

	if p.files != nil {
		g.Go(func() error {
			return p.files.Watch(gctx)
		})
	}

	logger.Info("croncal: started",
		zap.String("http", cfg.HTTPAddr),
		zap.String("provider", providerName(cfg)),
	)

	err = g.Wait()
	logger.Info("croncal: stopped")
	return err
}

// newServer mounts the API at / and, when enabled, the metrics endpoint at
// cfg.MetricsPath.
func newServer(cfg config.Config, p *provider, sink metrics.Sink, metricsHandler http.Handler, logger *zap.Logger) (*http.Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, invalidConfig(err)
	}

	handler := api.NewHandler(p.store, cron.NewParser(loc)).
		WithFormats(cronjob.Formats{
			Parameterized: cfg.Formats.Parameterized,
			Structured:    cfg.Formats.Structured,
		}).
		WithLastEvents(cfg.LastEvents).
		WithLogger(logger).
		WithMetrics(sink)
	if p.db != nil {
		handler = handler.WithHealthChecker(p.db)
	}

	mux := http.NewServeMux()
	if metricsHandler != nil {
		mux.Handle(cfg.MetricsPath, metricsHandler)
	}
	mux.Handle("/", handler)

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func providerName(cfg config.Config) string {
	if cfg.JobsFile != "" {
		return "file"
	}
	return "postgres"
}
