package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ecotrade_flows/models"
)

// PostgresStore keeps the same tables as SQLStore on Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reseller (
			id BIGSERIAL PRIMARY KEY,
			reseller TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS reseller_email (
			id BIGSERIAL PRIMARY KEY,
			id_reseller BIGINT NOT NULL REFERENCES reseller(id),
			email_destinatario TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS grossisti (
			id BIGSERIAL PRIMARY KEY,
			id_reseller BIGINT NOT NULL REFERENCES reseller(id),
			udd TEXT NOT NULL,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			tipo_misura TEXT NOT NULL,
			cartella TEXT NOT NULL,
			link_a_portale TEXT NOT NULL,
			attivo BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE TABLE IF NOT EXISTS esiti (
			id BIGSERIAL PRIMARY KEY,
			id_reseller BIGINT NOT NULL,
			id_grossista BIGINT NOT NULL,
			data_operazione TIMESTAMPTZ NOT NULL,
			data_riferimento DATE,
			data_inizio_ricerca DATE,
			data_fine_ricerca DATE,
			tipo_misura TEXT NOT NULL,
			log_contenuto TEXT,
			esito BOOLEAN NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_esiti_key ON esiti(id_reseller, id_grossista, tipo_misura, data_operazione DESC);
		CREATE TABLE IF NOT EXISTS run_attempts (
			id UUID PRIMARY KEY,
			id_grossista BIGINT NOT NULL,
			id_reseller BIGINT NOT NULL,
			tipo_misura TEXT NOT NULL,
			attempt INT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT,
			download_path TEXT
		);
		CREATE TABLE IF NOT EXISTS commands (
			id BIGSERIAL PRIMARY KEY,
			command TEXT NOT NULL,
			params JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		);`)
	return err
}

// =============================================================================
// Accounts
// =============================================================================

func (s *PostgresStore) ActiveAccounts(ctx context.Context, partnerTag string) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, r.id, r.reseller,
			COALESCE(string_agg(e.email_destinatario, ',' ORDER BY e.id), ''),
			g.username, g.password, g.tipo_misura, g.cartella, g.link_a_portale
		FROM grossisti g
		JOIN reseller r ON g.id_reseller = r.id
		LEFT JOIN reseller_email e ON e.id_reseller = r.id
		WHERE g.udd = $1 AND g.attivo
		GROUP BY g.id, r.id
		ORDER BY g.id`, partnerTag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var (
			acc        models.Account
			measure    string
			recipients string
		)
		if err := rows.Scan(&acc.WholesalerID, &acc.ResellerID, &acc.Reseller, &recipients,
			&acc.Username, &acc.Password, &measure, &acc.Root, &acc.PortalURL); err != nil {
			return nil, err
		}
		if err := accountFromRow(&acc, measure, recipients); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) AddAccount(ctx context.Context, acc *models.Account, partnerTag string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO reseller (id, reseller) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		acc.ResellerID, acc.Reseller); err != nil {
		return fmt.Errorf("insert reseller: %w", err)
	}

	query := `
		INSERT INTO grossisti (id_reseller, udd, username, password, tipo_misura, cartella, link_a_portale)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	args := []any{acc.ResellerID, partnerTag, acc.Username, acc.Password, acc.Measure.String(), acc.Root, acc.PortalURL}
	if acc.WholesalerID != 0 {
		query = `
			INSERT INTO grossisti (id, id_reseller, udd, username, password, tipo_misura, cartella, link_a_portale)
			VALUES ($8, $1, $2, $3, $4, $5, $6, $7) RETURNING id`
		args = append(args, acc.WholesalerID)
	}
	if err := tx.QueryRow(ctx, query, args...).Scan(&acc.WholesalerID); err != nil {
		return fmt.Errorf("insert login: %w", err)
	}

	for _, email := range acc.Recipients {
		if _, err := tx.Exec(ctx, `INSERT INTO reseller_email (id_reseller, email_destinatario) VALUES ($1, $2)`,
			acc.ResellerID, email); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// =============================================================================
// Outcomes
// =============================================================================

func (s *PostgresStore) LatestOutcome(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType) (*models.Outcome, error) {
	query := `
		SELECT data_operazione, data_riferimento, data_inizio_ricerca, data_fine_ricerca,
			COALESCE(log_contenuto, ''), esito
		FROM esiti
		WHERE id_reseller = $1 AND id_grossista = $2 AND tipo_misura = $3
		ORDER BY data_operazione DESC, id DESC
		LIMIT 1`

	o := models.Outcome{ResellerID: resellerID, WholesalerID: wholesalerID, Measure: measure}
	var ref, start, end *time.Time
	err := s.pool.QueryRow(ctx, query, resellerID, wholesalerID, measure.String()).
		Scan(&o.OperatedAt, &ref, &start, &end, &o.LogText, &o.Success)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.ReferenceDay, o.WindowStart, o.WindowEnd = pgDate(ref), pgDate(start), pgDate(end)
	return &o, nil
}

func (s *PostgresStore) RecentOutcomes(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType, limit int) ([]models.Outcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data_operazione, data_riferimento, data_inizio_ricerca, data_fine_ricerca,
			COALESCE(log_contenuto, ''), esito
		FROM esiti
		WHERE id_reseller = $1 AND id_grossista = $2 AND tipo_misura = $3
		ORDER BY data_operazione DESC, id DESC
		LIMIT $4`, resellerID, wholesalerID, measure.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []models.Outcome
	for rows.Next() {
		o := models.Outcome{ResellerID: resellerID, WholesalerID: wholesalerID, Measure: measure}
		var ref, start, end *time.Time
		if err := rows.Scan(&o.OperatedAt, &ref, &start, &end, &o.LogText, &o.Success); err != nil {
			return nil, err
		}
		o.ReferenceDay, o.WindowStart, o.WindowEnd = pgDate(ref), pgDate(start), pgDate(end)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *PostgresStore) SaveOutcome(ctx context.Context, o *models.Outcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO esiti (id_reseller, id_grossista, data_operazione, data_riferimento,
			data_inizio_ricerca, data_fine_ricerca, tipo_misura, log_contenuto, esito)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ResellerID, o.WholesalerID, o.OperatedAt,
		o.ReferenceDay, o.WindowStart, o.WindowEnd,
		o.Measure.String(), o.LogText, o.Success)
	return err
}

// pgDate maps a DATE column (decoded at UTC midnight) to local midnight.
func pgDate(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return models.DateOf(*t)
}

// =============================================================================
// Attempts & commands
// =============================================================================

func (s *PostgresStore) RecordAttempt(ctx context.Context, a *models.Attempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_attempts (id, id_grossista, id_reseller, tipo_misura, attempt,
			started_at, finished_at, success, error, download_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.WholesalerID, a.ResellerID, a.Measure.String(), a.Number,
		a.StartedAt, a.FinishedAt, a.Success, a.Error, a.DownloadPath)
	return err
}

func (s *PostgresStore) EnqueueCommand(ctx context.Context, cmd models.CommandType, params *models.CommandParams) error {
	encoded, err := encodeParams(params)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO commands (command, params) VALUES ($1, $2)`, string(cmd), encoded)
	return err
}

func (s *PostgresStore) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command, params::text, created_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var (
			cmd    models.Command
			kind   string
			params *string
		)
		if err := rows.Scan(&cmd.ID, &kind, &params, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		cmd.Command = models.CommandType(kind)
		if params != nil {
			cmd.Params = []byte(*params)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *PostgresStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE commands SET processed_at = NOW() WHERE id = $1`, id)
	return err
}
