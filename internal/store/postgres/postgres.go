package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ktrade/sentinel/internal/store"
)

// DB implements store.Store for PostgreSQL via the pgx stdlib driver.

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades(
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			realized_pnl DOUBLE PRECISION NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);`,
		`CREATE TABLE IF NOT EXISTS optimization_runs(
			id TEXT PRIMARY KEY,
			run_date TIMESTAMPTZ NOT NULL,
			phases TEXT NOT NULL,
			changes_json TEXT NOT NULL,
			report_path TEXT NOT NULL,
			outcome TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_optimization_runs_date ON optimization_runs(run_date);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) InsertTrade(ctx context.Context, t store.Trade) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trades(symbol, side, qty, entry_price, exit_price, realized_pnl, opened_at, closed_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8);`,
		t.Symbol, t.Side, t.Qty, t.EntryPrice, t.ExitPrice, t.RealizedPnL,
		t.OpenedAt.UTC(), t.ClosedAt.UTC())
	return err
}

func (p *DB) ClosedTrades(ctx context.Context, since, until time.Time) ([]store.Trade, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, symbol, side, qty, entry_price, exit_price, realized_pnl, opened_at, closed_at
		FROM trades
		WHERE closed_at >= $1 AND closed_at < $2
		ORDER BY closed_at ASC;`, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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

func (p *DB) RecordRun(ctx context.Context, r store.RunRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO optimization_runs(id, run_date, phases, changes_json, report_path, outcome, started_at, finished_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8);`,
		r.ID, r.Date.UTC(), r.Phases, r.ChangesJSON, r.ReportPath, r.Outcome,
		r.StartedAt.UTC(), r.FinishedAt.UTC())
	return err
}

func (p *DB) RecentRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, run_date, phases, changes_json, report_path, outcome, started_at, finished_at
		FROM optimization_runs
		ORDER BY started_at DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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

func (p *DB) CheckIntegrity(ctx context.Context) error {
	var n int
	return p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades;`).Scan(&n)
}
