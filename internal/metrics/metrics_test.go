package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Second call is a no-op, not a duplicate registration error.
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestHelpersDoNotPanic(t *testing.T) {
	IncHeartbeatCheck("stale")
	IncRestart("stale_heartbeat")
	IncAlert("urgent")
	IncOptimizationRun("refused")
	ObserveOptimizationDuration(12.5)
}
