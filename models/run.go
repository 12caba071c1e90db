package models

import (
	"time"

	"github.com/google/uuid"
)

// RunResult is what one workflow run hands back to the orchestrator.
type RunResult struct {
	Username     string      `json:"username"`
	Measure      MeasureType `json:"measure"`
	Success      bool        `json:"success"`
	LogPath      string      `json:"log_path"`
	DownloadPath string      `json:"download_path,omitempty"`
}

// Attempt is the audit trail of a single orchestrator attempt, written for
// failures as well as successes.
type Attempt struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	WholesalerID int64       `json:"wholesaler_id" db:"id_grossista"`
	ResellerID   int64       `json:"reseller_id" db:"id_reseller"`
	Measure      MeasureType `json:"measure" db:"tipo_misura"`
	Number       int         `json:"number" db:"attempt"`
	StartedAt    time.Time   `json:"started_at" db:"started_at"`
	FinishedAt   time.Time   `json:"finished_at" db:"finished_at"`
	Success      bool        `json:"success" db:"success"`
	Error        string      `json:"error,omitempty" db:"error"`
	DownloadPath string      `json:"download_path,omitempty" db:"download_path"`
}

func NewAttempt(acc *Account, number int) *Attempt {
	return &Attempt{
		ID:           uuid.New(),
		WholesalerID: acc.WholesalerID,
		ResellerID:   acc.ResellerID,
		Measure:      acc.Measure,
		Number:       number,
		StartedAt:    time.Now(),
	}
}
