package store

import (
	"context"
	"time"
)

// Trade is a closed trade outcome written by the bot and read by the
// optimizer's analysis phase. The supervision layer never writes trades
// outside of tests and backfills.
type Trade struct {
	ID          int64
	Symbol      string
	Side        string
	Qty         float64
	EntryPrice  float64
	ExitPrice   float64
	RealizedPnL float64
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// RunRecord is the persisted form of one optimization cycle.
// Immutable once written.
type RunRecord struct {
	ID          string
	Date        time.Time
	Phases      string // comma-joined completed phase names
	ChangesJSON string // applied (or refused) changes, JSON-encoded
	ReportPath  string
	Outcome     string // success, failed, refused
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Store persists trade outcomes and optimization runs.
type Store interface {
	EnsureSchema(ctx context.Context) error
	InsertTrade(ctx context.Context, t Trade) error
	ClosedTrades(ctx context.Context, since, until time.Time) ([]Trade, error)
	RecordRun(ctx context.Context, r RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	// CheckIntegrity verifies the schema is reachable and consistent;
	// used by the optimizer's health phase.
	CheckIntegrity(ctx context.Context) error
	Close() error
}
