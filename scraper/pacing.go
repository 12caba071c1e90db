package scraper

import (
	"context"
	"math/rand"
	"time"

	"ecotrade_flows/config"
)

// Pacing spaces out page actions so the session looks operated by a person.
// The zero value never sleeps.
type Pacing struct {
	Min, Max       time.Duration // pause between actions
	KeyMin, KeyMax time.Duration // pause between keystrokes

	TabSettle     time.Duration // after selecting a measure tab
	SearchSettle  time.Duration // after submitting the round 2 search
	TriggerSettle time.Duration // after firing a download script
	CloseMin      time.Duration // before closing the session
	CloseMax      time.Duration
}

func NewPacing(cfg config.PacingConfig) Pacing {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Pacing{
		Min:           ms(cfg.MinMS),
		Max:           ms(cfg.MaxMS),
		KeyMin:        ms(cfg.KeyMinMS),
		KeyMax:        ms(cfg.KeyMaxMS),
		TabSettle:     2 * time.Second,
		SearchSettle:  10 * time.Second,
		TriggerSettle: 2 * time.Second,
		CloseMin:      3 * time.Second,
		CloseMax:      5 * time.Second,
	}
}

// Pause waits a random interval between Min and Max.
func (p Pacing) Pause(ctx context.Context) error {
	return sleep(ctx, between(p.Min, p.Max))
}

// Keystroke waits between two typed characters.
func (p Pacing) Keystroke(ctx context.Context) error {
	return sleep(ctx, between(p.KeyMin, p.KeyMax))
}

func (p Pacing) BeforeClose(ctx context.Context) error {
	return sleep(ctx, between(p.CloseMin, p.CloseMax))
}

func (p Pacing) Settle(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
