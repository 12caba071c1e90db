package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ecotrade_flows/config"
	"ecotrade_flows/models"
)

// Store is the account roster, outcome log, attempt audit and operator
// command queue.
type Store interface {
	ActiveAccounts(ctx context.Context, partnerTag string) ([]models.Account, error)
	AddAccount(ctx context.Context, acc *models.Account, partnerTag string) error
	LatestOutcome(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType) (*models.Outcome, error)
	RecentOutcomes(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType, limit int) ([]models.Outcome, error)
	SaveOutcome(ctx context.Context, o *models.Outcome) error
	RecordAttempt(ctx context.Context, a *models.Attempt) error
	EnqueueCommand(ctx context.Context, cmd models.CommandType, params *models.CommandParams) error
	GetPendingCommands(ctx context.Context) ([]models.Command, error)
	MarkCommandProcessed(ctx context.Context, id int64) error
	Close() error
}

// Open connects to the configured database and prepares its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN())
	case "mysql", "sqlite3":
		return NewSQLStore(ctx, cfg.Driver, cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

const (
	sqlDateLayout     = "2006-01-02"
	sqlDateTimeLayout = "2006-01-02 15:04:05"
)

func encodeParams(params *models.CommandParams) (any, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// accountFromRow finishes an account scanned from the roster query.
func accountFromRow(acc *models.Account, measure, recipients string) error {
	m, err := models.ParseMeasure(measure)
	if err != nil {
		return fmt.Errorf("account %d: %w", acc.WholesalerID, err)
	}
	acc.Measure = m
	acc.Recipients = models.SplitRecipients(recipients)
	acc.Root = strings.TrimSpace(acc.Root)
	return nil
}
