package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ecotrade_flows/scheduler"
	"ecotrade_flows/scraper"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run retrieval passes on a schedule and serve operator commands",
	RunE:  runDaemon,
}

var daemonRunAtStart bool

func init() {
	daemonCmd.Flags().BoolVar(&daemonRunAtStart, "now", false, "Run one pass immediately at startup")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics := scraper.NewMetrics()
	orch, err := a.orchestrator(ctx, metrics)
	if err != nil {
		return err
	}

	lock, closeLock, err := scheduler.NewLocker(ctx, a.cfg.RedisURL)
	if err != nil {
		return err
	}
	defer closeLock()

	sched := scheduler.New(a.cfg.Scheduler, orch, a.store, lock)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: a.cfg.Metrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logrus.Infof("Serving metrics on %s/metrics", a.cfg.Metrics)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if daemonRunAtStart {
		g.Go(func() error {
			if err := sched.TriggerNow(gctx); err != nil {
				logrus.WithError(err).Error("Startup run failed")
			}
			return nil
		})
	}

	logrus.Info("Daemon running. Press Ctrl+C to stop.")
	<-gctx.Done()
	logrus.Info("Shutting down...")
	return g.Wait()
}
