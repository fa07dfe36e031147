package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// ruleColumns maps logical rule-level fields to signal_state columns.
var ruleColumns = map[types.Field]string{
	types.FieldSignal:        "signal_text",
	types.FieldLastAlertDate: "last_alert_date",
}

// snapshotColumns maps logical instrument-level fields to snapshot columns.
var snapshotColumns = map[types.Field]string{
	types.FieldLatestClose:  "latest_close",
	types.FieldSlope5:       "ma5_slope",
	types.FieldSlope10:      "ma10_slope",
	types.FieldSlope20:      "ma20_slope",
	types.FieldTangle:       "ma_tangle",
	types.FieldSlopeDesc:    "slope_desc",
	types.FieldDeviation:    "deviation_pct",
	types.FieldLowInterval:  "low_interval",
	types.FieldHighInterval: "high_interval",
	types.FieldAlertDetail:  "alert_detail",
	types.FieldAlertTime:    "alert_time",
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(logger *zap.Logger, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	s := &SQLiteStore{logger: logger, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			symbol TEXT PRIMARY KEY,
			name   TEXT NOT NULL DEFAULT '',
			market TEXT NOT NULL DEFAULT '',
			link   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS signal_state (
			symbol          TEXT NOT NULL,
			rule            TEXT NOT NULL,
			switch_token    TEXT NOT NULL DEFAULT 'ON',
			last_alert_date TEXT NOT NULL DEFAULT '',
			signal_text     TEXT NOT NULL DEFAULT '',
			updated_at      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (symbol, rule)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			symbol        TEXT PRIMARY KEY,
			latest_close  TEXT NOT NULL DEFAULT '',
			ma5_slope     TEXT NOT NULL DEFAULT '',
			ma10_slope    TEXT NOT NULL DEFAULT '',
			ma20_slope    TEXT NOT NULL DEFAULT '',
			ma_tangle     TEXT NOT NULL DEFAULT '',
			slope_desc    TEXT NOT NULL DEFAULT '',
			deviation_pct TEXT NOT NULL DEFAULT '',
			low_interval  TEXT NOT NULL DEFAULT '',
			high_interval TEXT NOT NULL DEFAULT '',
			alert_detail  TEXT NOT NULL DEFAULT '',
			alert_time    TEXT NOT NULL DEFAULT '',
			updated_at    TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// ListInstruments returns the watch-list ordered by symbol.
func (s *SQLiteStore) ListInstruments(ctx context.Context) ([]types.Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, name, market, link FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var out []types.Instrument
	for rows.Next() {
		var inst types.Instrument
		if err := rows.Scan(&inst.Symbol, &inst.Name, &inst.Market, &inst.Link); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// UpsertInstrument adds or updates a watch-list entry.
func (s *SQLiteStore) UpsertInstrument(ctx context.Context, inst types.Instrument) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instruments (symbol, name, market, link) VALUES (?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET name=excluded.name, market=excluded.market, link=excluded.link`,
		inst.Symbol, inst.Name, inst.Market, inst.Link)
	if err != nil {
		return fmt.Errorf("upsert instrument %s: %w", inst.Symbol, err)
	}
	return nil
}

// RemoveInstrument drops a watch-list entry and its per-rule state.
func (s *SQLiteStore) RemoveInstrument(ctx context.Context, symbol string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM instruments WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("remove instrument %s: %w", symbol, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrInstrumentUnknown, symbol)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM signal_state WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("remove state %s: %w", symbol, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("remove snapshot %s: %w", symbol, err)
	}
	return tx.Commit()
}

// SignalState reads one (instrument, rule) record, interpreting raw tokens
// with the safe defaults: absent or malformed rows read as enabled and never
// alerted.
func (s *SQLiteStore) SignalState(ctx context.Context, symbol string, rule types.Rule) (types.SignalState, error) {
	var switchToken, dateToken string
	err := s.db.QueryRowContext(ctx,
		`SELECT switch_token, last_alert_date FROM signal_state WHERE symbol = ? AND rule = ?`,
		symbol, rule).Scan(&switchToken, &dateToken)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SignalState{Enabled: true}, nil
	}
	if err != nil {
		return types.SignalState{}, fmt.Errorf("read state (%s, %s): %w", symbol, rule, err)
	}

	return types.SignalState{
		Enabled:   ParseSwitch(switchToken),
		LastAlert: ParseAlertDate(dateToken),
	}, nil
}

// SetSwitch stores a raw switch token for one (instrument, rule) pair.
func (s *SQLiteStore) SetSwitch(ctx context.Context, symbol string, rule types.Rule, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signal_state (symbol, rule, switch_token) VALUES (?, ?, ?)
		 ON CONFLICT(symbol, rule) DO UPDATE SET switch_token=excluded.switch_token`,
		symbol, rule, token)
	if err != nil {
		return fmt.Errorf("set switch (%s, %s): %w", symbol, rule, err)
	}
	return nil
}

// ApplyBatch writes every mutation of a run inside one transaction.
func (s *SQLiteStore) ApplyBatch(ctx context.Context, batch types.EvaluationBatch) error {
	if len(batch.Mutations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch %s: %w", batch.RunID, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, m := range batch.Mutations {
		if err := s.applyMutation(ctx, tx, m, now); err != nil {
			return fmt.Errorf("batch %s: %w", batch.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch %s: %w", batch.RunID, err)
	}

	s.logger.Debug("applied mutation batch",
		zap.String("run_id", batch.RunID),
		zap.Int("mutations", len(batch.Mutations)))
	return nil
}

func (s *SQLiteStore) applyMutation(ctx context.Context, tx *sql.Tx, m types.Mutation, now string) error {
	if m.Rule != "" {
		col, ok := ruleColumns[m.Field]
		if !ok {
			return fmt.Errorf("unknown rule field %q", m.Field)
		}
		query := fmt.Sprintf(
			`INSERT INTO signal_state (symbol, rule, %s, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(symbol, rule) DO UPDATE SET %s=excluded.%s, updated_at=excluded.updated_at`,
			col, col, col)
		_, err := tx.ExecContext(ctx, query, m.Symbol, m.Rule, m.Value, now)
		return err
	}

	col, ok := snapshotColumns[m.Field]
	if !ok {
		return fmt.Errorf("unknown snapshot field %q", m.Field)
	}
	query := fmt.Sprintf(
		`INSERT INTO snapshots (symbol, %s, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET %s=excluded.%s, updated_at=excluded.updated_at`,
		col, col, col)
	_, err := tx.ExecContext(ctx, query, m.Symbol, m.Value, now)
	return err
}
