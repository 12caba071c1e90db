package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"ecotrade_flows/models"
)

// SQLStore serves MySQL (the production roster database) and SQLite (local
// runs and tests). Both accept ? placeholders.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver == "sqlite3" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	switch driver {
	case "sqlite3":
		db.SetMaxOpenConns(1)
	case "mysql":
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	store := &SQLStore{db: db, driver: driver}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// migrate creates the full schema on SQLite. On MySQL the roster and outcome
// tables already exist, so only the tables this service owns are created.
func (s *SQLStore) migrate(ctx context.Context) error {
	if s.driver == "sqlite3" {
		if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
			return err
		}
	}

	for _, stmt := range s.auditSchema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reseller (
	id INTEGER PRIMARY KEY,
	reseller TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reseller_email (
	id INTEGER PRIMARY KEY,
	id_reseller INTEGER NOT NULL REFERENCES reseller(id),
	email_destinatario TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS grossisti (
	id INTEGER PRIMARY KEY,
	id_reseller INTEGER NOT NULL REFERENCES reseller(id),
	UDD TEXT NOT NULL,
	username TEXT NOT NULL,
	password TEXT NOT NULL,
	tipo_misura TEXT NOT NULL,
	cartella TEXT NOT NULL,
	link_a_portale TEXT NOT NULL,
	attivo BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS esiti (
	id INTEGER PRIMARY KEY,
	id_reseller INTEGER NOT NULL,
	id_grossista INTEGER NOT NULL,
	data_operazione DATETIME NOT NULL,
	data_riferimento DATE,
	data_inizio_ricerca DATE,
	data_fine_ricerca DATE,
	tipo_misura TEXT NOT NULL,
	log_contenuto TEXT,
	esito BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_esiti_key ON esiti(id_reseller, id_grossista, tipo_misura, data_operazione);
`

func (s *SQLStore) auditSchema() []string {
	id := "INTEGER PRIMARY KEY"
	text := "TEXT"
	if s.driver == "mysql" {
		id = "BIGINT AUTO_INCREMENT PRIMARY KEY"
		text = "MEDIUMTEXT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS run_attempts (
			id VARCHAR(36) PRIMARY KEY,
			id_grossista BIGINT NOT NULL,
			id_reseller BIGINT NOT NULL,
			tipo_misura VARCHAR(16) NOT NULL,
			attempt INT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			success BOOLEAN NOT NULL,
			error ` + text + `,
			download_path VARCHAR(1024)
		)`,
		`CREATE TABLE IF NOT EXISTS commands (
			id ` + id + `,
			command VARCHAR(32) NOT NULL,
			params ` + text + `,
			created_at DATETIME NOT NULL,
			processed_at DATETIME NULL
		)`,
	}
}

// =============================================================================
// Accounts
// =============================================================================

func (s *SQLStore) ActiveAccounts(ctx context.Context, partnerTag string) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, r.id, r.reseller,
			COALESCE(GROUP_CONCAT(e.email_destinatario), ''),
			g.username, g.password, g.tipo_misura, g.cartella, g.link_a_portale
		FROM grossisti g
		JOIN reseller r ON g.id_reseller = r.id
		LEFT JOIN reseller_email e ON e.id_reseller = r.id
		WHERE g.UDD = ? AND g.attivo = 1
		GROUP BY g.id, r.id, r.reseller, g.username, g.password, g.tipo_misura, g.cartella, g.link_a_portale
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

// AddAccount registers a portal login under partnerTag, creating the
// reseller when needed. A zero WholesalerID lets the database assign one.
func (s *SQLStore) AddAccount(ctx context.Context, acc *models.Account, partnerTag string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ignore := "INSERT OR IGNORE"
	if s.driver == "mysql" {
		ignore = "INSERT IGNORE"
	}
	if _, err := tx.ExecContext(ctx, ignore+` INTO reseller (id, reseller) VALUES (?, ?)`, acc.ResellerID, acc.Reseller); err != nil {
		return fmt.Errorf("insert reseller: %w", err)
	}

	var id any
	if acc.WholesalerID != 0 {
		id = acc.WholesalerID
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO grossisti (id, id_reseller, UDD, username, password, tipo_misura, cartella, link_a_portale, attivo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		id, acc.ResellerID, partnerTag, acc.Username, acc.Password, acc.Measure.String(), acc.Root, acc.PortalURL)
	if err != nil {
		return fmt.Errorf("insert login: %w", err)
	}
	if acc.WholesalerID == 0 {
		if acc.WholesalerID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	for _, email := range acc.Recipients {
		if _, err := tx.ExecContext(ctx, `INSERT INTO reseller_email (id_reseller, email_destinatario) VALUES (?, ?)`,
			acc.ResellerID, email); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// Outcomes
// =============================================================================

func (s *SQLStore) LatestOutcome(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType) (*models.Outcome, error) {
	outcomes, err := s.RecentOutcomes(ctx, resellerID, wholesalerID, measure, 1)
	if err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, nil
	}
	return &outcomes[0], nil
}

func (s *SQLStore) RecentOutcomes(ctx context.Context, resellerID, wholesalerID int64, measure models.MeasureType, limit int) ([]models.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data_operazione, data_riferimento, data_inizio_ricerca, data_fine_ricerca,
			COALESCE(log_contenuto, ''), esito
		FROM esiti
		WHERE id_reseller = ? AND id_grossista = ? AND tipo_misura = ?
		ORDER BY data_operazione DESC, id DESC
		LIMIT ?`, resellerID, wholesalerID, measure.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []models.Outcome
	for rows.Next() {
		o := models.Outcome{ResellerID: resellerID, WholesalerID: wholesalerID, Measure: measure}
		var ref, start, end sql.NullTime
		if err := rows.Scan(&o.OperatedAt, &ref, &start, &end, &o.LogText, &o.Success); err != nil {
			return nil, err
		}
		o.ReferenceDay = nullDate(ref)
		o.WindowStart = nullDate(start)
		o.WindowEnd = nullDate(end)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *SQLStore) SaveOutcome(ctx context.Context, o *models.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO esiti (id_reseller, id_grossista, data_operazione, data_riferimento,
			data_inizio_ricerca, data_fine_ricerca, tipo_misura, log_contenuto, esito)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ResellerID, o.WholesalerID,
		o.OperatedAt.Format(sqlDateTimeLayout),
		o.ReferenceDay.Format(sqlDateLayout),
		o.WindowStart.Format(sqlDateLayout),
		o.WindowEnd.Format(sqlDateLayout),
		o.Measure.String(), o.LogText, o.Success)
	return err
}

func nullDate(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return models.DateOf(t.Time)
}

// =============================================================================
// Attempts
// =============================================================================

func (s *SQLStore) RecordAttempt(ctx context.Context, a *models.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_attempts (id, id_grossista, id_reseller, tipo_misura, attempt,
			started_at, finished_at, success, error, download_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.WholesalerID, a.ResellerID, a.Measure.String(), a.Number,
		a.StartedAt.Format(sqlDateTimeLayout), a.FinishedAt.Format(sqlDateTimeLayout),
		a.Success, a.Error, a.DownloadPath)
	return err
}

// CountAttempts returns how many attempts were audited for a wholesaler login.
func (s *SQLStore) CountAttempts(ctx context.Context, wholesalerID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_attempts WHERE id_grossista = ?`, wholesalerID).Scan(&n)
	return n, err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLStore) EnqueueCommand(ctx context.Context, cmd models.CommandType, params *models.CommandParams) error {
	encoded, err := encodeParams(params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		string(cmd), encoded, time.Now().Format(sqlDateTimeLayout))
	return err
}

func (s *SQLStore) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, params, created_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE commands SET processed_at = ? WHERE id = ?`,
		time.Now().Format(sqlDateTimeLayout), id)
	return err
}
