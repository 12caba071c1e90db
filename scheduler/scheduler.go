package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ecotrade_flows/config"
	"ecotrade_flows/models"
	"ecotrade_flows/scraper"
)

// Runner is the part of the orchestrator the daemon drives.
type Runner interface {
	RunAll(ctx context.Context) (*scraper.Summary, error)
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

// CommandQueue is the operator command table.
type CommandQueue interface {
	GetPendingCommands(ctx context.Context) ([]models.Command, error)
	MarkCommandProcessed(ctx context.Context, id int64) error
}

type Scheduler struct {
	cfg       config.SchedulerConfig
	runner    Runner
	queue     CommandQueue
	lock      Locker
	cron      *cron.Cron
	ticker    *time.Ticker
	stopCh    chan struct{}
	pollEvery time.Duration
}

func New(cfg config.SchedulerConfig, runner Runner, queue CommandQueue, lock Locker) *Scheduler {
	if lock == nil {
		lock = &LocalLock{}
	}
	return &Scheduler{
		cfg:       cfg,
		runner:    runner,
		queue:     queue,
		lock:      lock,
		cron:      cron.New(),
		stopCh:    make(chan struct{}),
		pollEvery: 2 * time.Second,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Cron != "" {
		logrus.Infof("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() {
			s.scheduledRun(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		logrus.Infof("Starting scheduler with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.scheduledRun(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		logrus.Info("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// TriggerNow runs one pass immediately unless another is in progress.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.guarded(ctx, "manual", func(ctx context.Context) error {
		_, err := s.runner.RunAll(ctx)
		return err
	})
}

func (s *Scheduler) scheduledRun(ctx context.Context) {
	if err := s.TriggerNow(ctx); err != nil {
		logrus.WithError(err).Error("Scheduled run error")
	}
}

// guarded runs fn under the run lock. A pass already in progress is not an
// error; the trigger is skipped.
func (s *Scheduler) guarded(ctx context.Context, name string, fn func(context.Context) error) error {
	release, ok, err := s.lock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logrus.Warnf("Run already in progress, skipping %s trigger", name)
		return nil
	}
	defer release()
	return fn(ctx)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.queue.GetPendingCommands(ctx)
	if err != nil {
		logrus.WithError(err).Error("Error getting commands")
		return
	}

	for i := range cmds {
		cmd := &cmds[i]
		logrus.Infof("Processing command: %s", cmd.Command)
		if err := s.handleCommand(ctx, cmd); err != nil {
			logrus.WithError(err).Errorf("Command %d failed", cmd.ID)
		}
		if err := s.queue.MarkCommandProcessed(ctx, cmd.ID); err != nil {
			logrus.WithError(err).Error("Error marking command processed")
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunNow, models.CmdRunAccount:
		return s.guarded(ctx, string(cmd.Command), func(ctx context.Context) error {
			return s.runner.HandleCommand(ctx, cmd)
		})
	default:
		return s.runner.HandleCommand(ctx, cmd)
	}
}
