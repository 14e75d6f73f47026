package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ktrade/sentinel/internal/metrics"
)

func TestBuildRootCommandTree(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"start": false, "stop": false, "restart": false, "status": false,
		"watch": false, "optimize": false, "schedule": false, "runs": false,
		"serve": false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestScheduleSubcommands(t *testing.T) {
	root := buildRoot()
	for _, c := range root.Commands() {
		if c.Name() != "schedule" {
			continue
		}
		want := map[string]bool{"install": false, "remove": false, "list": false}
		for _, sub := range c.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, seen := range want {
			if !seen {
				t.Fatalf("missing schedule subcommand %q", name)
			}
		}
		return
	}
	t.Fatalf("schedule command not registered")
}

func TestAppActivatesMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[bot]\ncommand = \"sleep 30\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c := command{flags: &GlobalFlags{ConfigPath: path}}
	if _, err := c.app(); err != nil {
		t.Fatalf("app: %v", err)
	}
	// Counters must move in this process, not only under serve.
	metrics.IncAlert("info")
	fams, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range fams {
		if f.GetName() == "sentinel_alert_sent_total" {
			return
		}
	}
	t.Fatalf("alert counter not registered by command wiring")
}

func TestExitErrorCarriesCode(t *testing.T) {
	base := errors.New("bot already running")
	err := exitError{exitAlreadyRunning, base}

	var ee exitError
	if !errors.As(error(err), &ee) {
		t.Fatalf("errors.As failed")
	}
	if ee.code != exitAlreadyRunning {
		t.Fatalf("code: %d", ee.code)
	}
	if !errors.Is(error(err), base) {
		t.Fatalf("unwrap lost the cause")
	}
}
