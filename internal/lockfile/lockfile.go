package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrHeld is returned by Acquire when a still-valid holder owns the lock.
// Callers skip the tick; they never block waiting for release.
var ErrHeld = errors.New("lock held by a live owner")

// Record is the durable marker preventing overlapping executions of the
// same scheduled job. A crashed holder is reclaimed after TTL expiry or
// when its PID is gone.
type Record struct {
	Owner      string        `json:"owner"`
	PID        int           `json:"pid"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl"`
}

func (r Record) expiresAt() time.Time { return r.AcquiredAt.Add(r.TTL) }

// Lock is a single named lock backed by a JSON file.
type Lock struct {
	Path string
	TTL  time.Duration
}

func New(path string, ttl time.Duration) *Lock {
	return &Lock{Path: path, TTL: ttl}
}

// Acquire claims the lock for owner, or returns ErrHeld when a live,
// unexpired holder exists. Stale records (expired TTL or dead holder PID)
// are reclaimed in place.
func (l *Lock) Acquire(owner string) error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o750); err != nil {
		return err
	}
	for range 2 {
		err := l.tryCreate(owner)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return err
		}
		cur, rerr := l.Read()
		if rerr != nil {
			// Unreadable record: treat as crashed holder and reclaim.
			_ = os.Remove(l.Path)
			continue
		}
		if time.Now().Before(cur.expiresAt()) && pidAlive(cur.PID) {
			return fmt.Errorf("%w: %s (pid %d)", ErrHeld, cur.Owner, cur.PID)
		}
		_ = os.Remove(l.Path)
	}
	return fmt.Errorf("lock %s: could not reclaim", l.Path)
}

func (l *Lock) tryCreate(owner string) error {
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	rec := Record{Owner: owner, PID: os.Getpid(), AcquiredAt: time.Now(), TTL: l.TTL}
	enc := json.NewEncoder(f)
	if err := enc.Encode(rec); err != nil {
		_ = f.Close()
		_ = os.Remove(l.Path)
		return err
	}
	return f.Close()
}

// Read returns the current record, if any.
func (l *Lock) Read() (Record, error) {
	var rec Record
	b, err := os.ReadFile(l.Path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Release removes the lock file. Safe to call when not held.
func (l *Lock) Release() {
	_ = os.Remove(l.Path)
}

// pidAlive reports whether a process with the given pid exists (or EPERM).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
