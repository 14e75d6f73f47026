package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ktrade/sentinel/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// Path is a filesystem path; use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);`,
		`CREATE TABLE IF NOT EXISTS optimization_runs(
			id TEXT PRIMARY KEY,
			run_date TIMESTAMP NOT NULL,
			phases TEXT NOT NULL,
			changes_json TEXT NOT NULL,
			report_path TEXT NOT NULL,
			outcome TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_optimization_runs_date ON optimization_runs(run_date);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) InsertTrade(ctx context.Context, t store.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades(symbol, side, qty, entry_price, exit_price, realized_pnl, opened_at, closed_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		t.Symbol, t.Side, t.Qty, t.EntryPrice, t.ExitPrice, t.RealizedPnL,
		t.OpenedAt.UTC(), t.ClosedAt.UTC())
	return err
}

func (s *DB) ClosedTrades(ctx context.Context, since, until time.Time) ([]store.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, qty, entry_price, exit_price, realized_pnl, opened_at, closed_at
		FROM trades
		WHERE closed_at >= ? AND closed_at < ?
		ORDER BY closed_at ASC;`, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTrades(rows)
}

func (s *DB) RecordRun(ctx context.Context, r store.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO optimization_runs(id, run_date, phases, changes_json, report_path, outcome, started_at, finished_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		r.ID, r.Date.UTC(), r.Phases, r.ChangesJSON, r.ReportPath, r.Outcome,
		r.StartedAt.UTC(), r.FinishedAt.UTC())
	return err
}

func (s *DB) RecentRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_date, phases, changes_json, report_path, outcome, started_at, finished_at
		FROM optimization_runs
		ORDER BY started_at DESC
		LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRuns(rows)
}

func (s *DB) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check;`).Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return errors.New("sqlite integrity check: " + result)
	}
	var n int
	return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades;`).Scan(&n)
}

func scanTrades(rows *sql.Rows) ([]store.Trade, error) {
	out := make([]store.Trade, 0)
	for rows.Next() {
		var t store.Trade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Qty, &t.EntryPrice, &t.ExitPrice,
			&t.RealizedPnL, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanRuns(rows *sql.Rows) ([]store.RunRecord, error) {
	out := make([]store.RunRecord, 0)
	for rows.Next() {
		var r store.RunRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.Phases, &r.ChangesJSON, &r.ReportPath,
			&r.Outcome, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
