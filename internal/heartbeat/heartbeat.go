package heartbeat

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultThreshold is the maximum heartbeat age before the bot is
// considered lost.
const DefaultThreshold = 600 * time.Second

// Classification is the result of reading the heartbeat file.
type Classification int

const (
	// Fresh means the heartbeat is present and within the threshold.
	Fresh Classification = iota
	// Stale means the heartbeat is present but older than the threshold.
	Stale
	// Missing means the file is absent or its content cannot be parsed.
	// The bot may simply be starting up; Missing is not an error.
	Missing
)

func (c Classification) String() string {
	switch c {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Monitor classifies the liveness of the bot from its heartbeat file.
// The file contains a single unix timestamp with fractional seconds,
// written by the bot each cycle. The monitor is the only reader.
type Monitor struct {
	Path      string
	Threshold time.Duration
}

func NewMonitor(path string, threshold time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{Path: path, Threshold: threshold}
}

// Classify reads the heartbeat and compares its age against the threshold.
// A partial or corrupt read classifies as Missing rather than erroring;
// restart decisions belong to the supervisor, not here.
func (m *Monitor) Classify(now time.Time) Classification {
	ts, ok := m.read()
	if !ok {
		return Missing
	}
	if now.Sub(ts) <= m.Threshold {
		return Fresh
	}
	return Stale
}

// Last returns the recorded heartbeat time, if one could be parsed.
func (m *Monitor) Last() (time.Time, bool) {
	return m.read()
}

func (m *Monitor) read() (time.Time, bool) {
	b, err := os.ReadFile(m.Path)
	if err != nil {
		return time.Time{}, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil || v <= 0 {
		return time.Time{}, false
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), true
}

// Write records now as the heartbeat, atomically (write-temp, rename).
// This is the bot-side half of the contract; the supervision layer itself
// only uses it in tests.
func Write(path string, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp"
	v := fmt.Sprintf("%.6f", float64(now.UnixNano())/1e9)
	if err := os.WriteFile(tmp, []byte(v+"\n"), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
