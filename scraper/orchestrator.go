package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ecotrade_flows/models"
)

// AccountSource lists the active accounts for a partner tag.
type AccountSource interface {
	ActiveAccounts(ctx context.Context, partnerTag string) ([]models.Account, error)
}

// WindowResolver computes the search window for an outcome key.
type WindowResolver interface {
	Resolve(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType) (models.Window, error)
}

type Runner interface {
	Run(ctx context.Context, acc *models.Account, window models.Window) (*models.RunResult, error)
}

// Notifier reports one attempt to the account's recipients.
type Notifier interface {
	Notify(ctx context.Context, acc *models.Account, result *models.RunResult, runErr error) error
}

// AttemptRecorder keeps the audit trail of every attempt.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a *models.Attempt) error
}

type OrchestratorOptions struct {
	PartnerTag string
	MaxRetries int
	ForceDate  *time.Time // fixed (date, date) window instead of the watermark
	Attempts   AttemptRecorder
	Metrics    *Metrics
}

// Summary is the tally of one pass over the roster.
type Summary struct {
	Accounts  int
	Succeeded int
	Abandoned []string
}

type Orchestrator struct {
	accounts AccountSource
	resolver WindowResolver
	runner   Runner
	notifier Notifier
	opts     OrchestratorOptions

	mu      sync.Mutex
	running sync.Mutex
	paused  bool
}

func NewOrchestrator(accounts AccountSource, resolver WindowResolver, runner Runner, notifier Notifier, opts OrchestratorOptions) *Orchestrator {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Orchestrator{
		accounts: accounts,
		resolver: resolver,
		runner:   runner,
		notifier: notifier,
		opts:     opts,
	}
}

// RunAll processes every active account once, strictly one after another.
// Only a roster load failure is returned; account failures end up in the
// summary.
func (o *Orchestrator) RunAll(ctx context.Context) (*Summary, error) {
	return o.run(ctx, func(models.Account) bool { return true })
}

// RunAccount processes the active accounts with the given username, limited
// to one measure when measure is not empty.
func (o *Orchestrator) RunAccount(ctx context.Context, username, measure string) (*Summary, error) {
	return o.run(ctx, func(acc models.Account) bool {
		if acc.Username != username {
			return false
		}
		return measure == "" || strings.EqualFold(acc.Measure.String(), measure)
	})
}

func (o *Orchestrator) run(ctx context.Context, keep func(models.Account) bool) (*Summary, error) {
	if o.IsPaused() {
		logrus.Info("Retrieval is paused, skipping run")
		return &Summary{}, nil
	}

	// One pass at a time, whatever triggered it.
	o.running.Lock()
	defer o.running.Unlock()

	accounts, err := o.accounts.ActiveAccounts(ctx, o.opts.PartnerTag)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	logrus.Infof("Loaded %d accounts", len(accounts))

	summary := &Summary{}
	for i := range accounts {
		acc := &accounts[i]
		if !keep(*acc) {
			continue
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		summary.Accounts++
		if o.processAccount(ctx, acc) {
			summary.Succeeded++
		} else {
			summary.Abandoned = append(summary.Abandoned, acc.Label())
		}
	}

	logrus.WithFields(logrus.Fields{
		"accounts":  summary.Accounts,
		"succeeded": summary.Succeeded,
		"abandoned": len(summary.Abandoned),
	}).Info("Retrieval pass complete")
	return summary, nil
}

// processAccount retries acc up to MaxRetries times and reports whether an
// attempt succeeded.
func (o *Orchestrator) processAccount(ctx context.Context, acc *models.Account) bool {
	log := logrus.WithField("account", acc.Label())
	log.Info("Processing account")

	for n := 1; n <= o.opts.MaxRetries; n++ {
		if ctx.Err() != nil {
			return false
		}
		if o.attempt(ctx, acc, n, log) {
			log.Info("Completed successfully")
			return true
		}
		log.Warnf("Attempt %d/%d failed", n, o.opts.MaxRetries)
	}

	log.Errorf("All %d attempts failed, abandoning until next cycle", o.opts.MaxRetries)
	o.opts.Metrics.IncAbandoned(acc.Measure.String())
	return false
}

func (o *Orchestrator) attempt(ctx context.Context, acc *models.Account, n int, log *logrus.Entry) bool {
	rec := models.NewAttempt(acc, n)

	var (
		result *models.RunResult
		err    error
	)
	window, err := o.window(ctx, acc)
	if err != nil {
		err = fmt.Errorf("resolve window: %w", err)
		log.WithError(err).Error("Cannot determine search window")
	} else {
		log.Infof("Window %s", window)
		result, err = o.runner.Run(ctx, acc, window)
		if nerr := o.notifier.Notify(ctx, acc, result, err); nerr != nil {
			log.WithError(nerr).Warn("Notification failed")
		}
	}

	rec.FinishedAt = time.Now()
	rec.Success = err == nil && result != nil && result.Success
	if err != nil {
		rec.Error = err.Error()
		o.opts.Metrics.IncError(err)
	}
	if result != nil {
		rec.DownloadPath = result.DownloadPath
	}
	o.opts.Metrics.ObserveAttempt(acc.Measure.String(), rec.Success, rec.FinishedAt.Sub(rec.StartedAt))

	if o.opts.Attempts != nil {
		if aerr := o.opts.Attempts.RecordAttempt(ctx, rec); aerr != nil {
			log.WithError(aerr).Warn("Could not record attempt")
		}
	}
	return rec.Success
}

func (o *Orchestrator) window(ctx context.Context, acc *models.Account) (models.Window, error) {
	if o.opts.ForceDate != nil {
		d := models.DateOf(*o.opts.ForceDate)
		return models.Window{Start: d, End: d}, nil
	}
	return o.resolver.Resolve(ctx, acc.ResellerID, acc.WholesalerID, acc.Measure)
}

// HandleCommand applies an operator command.
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := cmd.ParseParams()
	if err != nil {
		return fmt.Errorf("command %d params: %w", cmd.ID, err)
	}

	switch cmd.Command {
	case models.CmdRunNow:
		_, err = o.RunAll(ctx)
		return err
	case models.CmdRunAccount:
		if params.Username == "" {
			return fmt.Errorf("command %d: username required", cmd.ID)
		}
		_, err = o.RunAccount(ctx, params.Username, params.Measure)
		return err
	case models.CmdPause:
		o.setPaused(true)
		logrus.Info("Retrieval paused")
	case models.CmdResume:
		o.setPaused(false)
		logrus.Info("Retrieval resumed")
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) setPaused(p bool) {
	o.mu.Lock()
	o.paused = p
	o.mu.Unlock()
}
