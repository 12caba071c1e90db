package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ecotrade_flows/config"
	"ecotrade_flows/logging"
	"ecotrade_flows/notify"
	"ecotrade_flows/scraper"
	"ecotrade_flows/services"
	"ecotrade_flows/storage"
)

var rootCmd = &cobra.Command{
	Use:           "flowfetch",
	Short:         "Metering flow retrieval for the reseller portal",
	Long:          "flowfetch logs into the wholesaler portal for every active account, downloads the new metering flows and archives them.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	store   storage.Store
	logFile *logging.RotatingWriter
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logFile, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Warn("Could not set up file logging")
	}

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Redacted(), err)
	}
	logrus.Infof("Connected to %s", cfg.Database.Redacted())

	return &app{cfg: cfg, store: store, logFile: logFile}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logrus.WithError(err).Warn("Database did not close cleanly")
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// orchestrator wires the browser workflow, notifications and the outcome
// store into a run orchestrator.
func (a *app) orchestrator(ctx context.Context, metrics *scraper.Metrics) (*scraper.Orchestrator, error) {
	opts := scraper.WorkflowOptions{
		Pacing:          scraper.NewPacing(a.cfg.Pacing),
		DownloadTimeout: a.cfg.Browser.DownloadTimeout,
		Tag:             a.cfg.WholesalerTag(),
		Metrics:         metrics,
	}
	if a.cfg.S3.Enabled() {
		mirror, err := storage.NewS3Mirror(ctx, a.cfg.S3)
		if err != nil {
			return nil, err
		}
		opts.Mirror = mirror
		logrus.Infof("Mirroring archives to s3://%s", a.cfg.S3.Bucket)
	}

	browser := scraper.NewPlaywrightBrowser(a.cfg.Browser)
	workflow := scraper.NewWorkflow(browser, a.cfg.Portal, a.store, opts)
	mailer := notify.NewMailer(a.cfg.Mail, a.cfg.WholesalerTag())
	resolver := services.NewWatermarkResolver(a.store)

	return scraper.NewOrchestrator(a.store, resolver, workflow, mailer, scraper.OrchestratorOptions{
		PartnerTag: a.cfg.PartnerTag,
		MaxRetries: a.cfg.MaxRetries,
		ForceDate:  a.cfg.ForceDate,
		Attempts:   a.store,
		Metrics:    metrics,
	}), nil
}
