package services

import (
	"context"
	"fmt"
	"time"

	"ecotrade_flows/models"
)

const lookback = 7 // days

// OutcomeReader reads the latest outcome row for a key.
type OutcomeReader interface {
	LatestOutcome(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType) (*models.Outcome, error)
}

// WatermarkResolver computes the next search window from the outcome log
type WatermarkResolver struct {
	store OutcomeReader
	now   func() time.Time
}

// NewWatermarkResolver creates a resolver reading store
func NewWatermarkResolver(store OutcomeReader) *WatermarkResolver {
	return &WatermarkResolver{store: store, now: time.Now}
}

// Resolve returns the window ending today. The start is today minus seven
// days unless the latest outcome failed, in which case the run resumes from
// that outcome's window start.
func (r *WatermarkResolver) Resolve(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType) (models.Window, error) {
	today := models.DateOf(r.now())
	window := models.Window{Start: today.AddDate(0, 0, -lookback), End: today}

	last, err := r.store.LatestOutcome(ctx, resellerID, wholesalerID, measure)
	if err != nil {
		return models.Window{}, fmt.Errorf("latest outcome for %d/%d/%s: %w", resellerID, wholesalerID, measure, err)
	}
	if last != nil && !last.Success && !last.WindowStart.IsZero() {
		window.Start = models.DateOf(last.WindowStart)
	}
	return window, nil
}
