package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ktrade/sentinel/internal/store"
)

func open(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "sentinel.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

func TestTradesRoundTripAndWindow(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	trades := []store.Trade{
		{Symbol: "AAPL", Side: "long", Qty: 10, EntryPrice: 100, ExitPrice: 110, RealizedPnL: 100, OpenedAt: now.Add(-72 * time.Hour), ClosedAt: now.Add(-48 * time.Hour)},
		{Symbol: "MSFT", Side: "long", Qty: 5, EntryPrice: 300, ExitPrice: 290, RealizedPnL: -50, OpenedAt: now.Add(-30 * time.Hour), ClosedAt: now.Add(-24 * time.Hour)},
		{Symbol: "NVDA", Side: "long", Qty: 2, EntryPrice: 500, ExitPrice: 550, RealizedPnL: 100, OpenedAt: now.Add(-2 * time.Hour), ClosedAt: now.Add(-1 * time.Hour)},
	}
	for _, tr := range trades {
		if err := db.InsertTrade(ctx, tr); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := db.ClosedTrades(ctx, now.Add(-26*time.Hour), now)
	if err != nil {
		t.Fatalf("window query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 trades in window, got %d", len(got))
	}
	if got[0].Symbol != "MSFT" || got[1].Symbol != "NVDA" {
		t.Fatalf("wrong order or rows: %+v", got)
	}
	if got[0].RealizedPnL != -50 {
		t.Fatalf("pnl lost: %+v", got[0])
	}
}

func TestRunRecordRoundTrip(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	rec := store.RunRecord{
		ID:          "2026-08-26",
		Date:        time.Now().UTC().Truncate(time.Second),
		Phases:      "health,analysis,proposal,apply,report",
		ChangesJSON: `[{"field":"rsi_sell_threshold","old":"75","new":"70"}]`,
		ReportPath:  "/var/lib/sentinel/reports/optimization_2026-08-26.md",
		Outcome:     "success",
		StartedAt:   time.Now().UTC().Add(-time.Minute).Truncate(time.Second),
		FinishedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := db.RecordRun(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	runs, err := db.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != rec.ID || runs[0].Outcome != "success" || runs[0].ChangesJSON != rec.ChangesJSON {
		t.Fatalf("round trip mismatch: %+v", runs[0])
	}
}

func TestCheckIntegrity(t *testing.T) {
	db := open(t)
	if err := db.CheckIntegrity(context.Background()); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}
