package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "watchdog.lock"), time.Minute)
	if err := l.Acquire("watchdog"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	rec, err := l.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Owner != "watchdog" || rec.PID != os.Getpid() {
		t.Fatalf("unexpected record: %+v", rec)
	}
	l.Release()
	if err := l.Acquire("watchdog"); err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
}

func TestAcquireHeldByLiveOwner(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "job.lock"), time.Minute)
	if err := l.Acquire("first"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err := l.Acquire("second")
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
}

func TestAcquireReclaimsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.lock")
	rec := Record{Owner: "old", PID: os.Getpid(), AcquiredAt: time.Now().Add(-2 * time.Hour), TTL: time.Hour}
	b, _ := json.Marshal(rec)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	l := New(path, time.Hour)
	if err := l.Acquire("new"); err != nil {
		t.Fatalf("expected reclaim of expired lock, got %v", err)
	}
	got, _ := l.Read()
	if got.Owner != "new" {
		t.Fatalf("expected new owner, got %q", got.Owner)
	}
}

func TestAcquireReclaimsDeadHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.lock")
	// PID 1 is init and always alive; use an implausible pid instead.
	rec := Record{Owner: "crashed", PID: 1 << 30, AcquiredAt: time.Now(), TTL: time.Hour}
	b, _ := json.Marshal(rec)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	l := New(path, time.Hour)
	if err := l.Acquire("new"); err != nil {
		t.Fatalf("expected reclaim of dead holder, got %v", err)
	}
}

func TestAcquireReclaimsCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.lock")
	if err := os.WriteFile(path, []byte("{half a record"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	l := New(path, time.Hour)
	if err := l.Acquire("new"); err != nil {
		t.Fatalf("expected reclaim of corrupt record, got %v", err)
	}
}
