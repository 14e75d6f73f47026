package schedule

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/ktrade/sentinel/internal/runner"
)

// fakeCrontab emulates the crontab binary: -l prints the stored table,
// - replaces it from stdin.
type fakeCrontab struct {
	table   string
	absent  bool
	written []string
}

func (f *fakeCrontab) Run(_ context.Context, spec runner.Spec) (runner.Result, error) {
	switch spec.Command {
	case "crontab -l":
		if f.absent {
			return runner.Result{ExitCode: 1, Stderr: "no crontab for user"}, nil
		}
		return runner.Result{Stdout: f.table}, nil
	case "crontab -":
		b, err := io.ReadAll(spec.Stdin)
		if err != nil {
			return runner.Result{}, err
		}
		f.table = string(b)
		f.absent = false
		f.written = append(f.written, f.table)
		return runner.Result{}, nil
	}
	return runner.Result{ExitCode: 127, Stderr: "unknown command"}, nil
}

func testEntries() []Entry {
	return []Entry{
		{Expr: "*/10 * * * *", Command: "/usr/local/bin/sentinel watch", Label: "watchdog"},
		{Expr: "0 3 * * 1", Command: "/usr/local/bin/sentinel optimize", Label: "optimizer"},
	}
}

func TestInstallIntoEmptyCrontab(t *testing.T) {
	fake := &fakeCrontab{absent: true}
	c := NewCrontab(fake, nil)
	if err := c.Install(context.Background(), testEntries()); err != nil {
		t.Fatalf("install: %v", err)
	}
	want := "*/10 * * * * /usr/local/bin/sentinel watch # sentinel:watchdog\n" +
		"0 3 * * 1 /usr/local/bin/sentinel optimize # sentinel:optimizer\n"
	if fake.table != want {
		t.Fatalf("crontab mismatch:\n%q\nwant\n%q", fake.table, want)
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	fake := &fakeCrontab{absent: true}
	c := NewCrontab(fake, nil)
	ctx := context.Background()
	if err := c.Install(ctx, testEntries()); err != nil {
		t.Fatalf("first install: %v", err)
	}
	first := fake.table
	if err := c.Install(ctx, testEntries()); err != nil {
		t.Fatalf("second install: %v", err)
	}
	if fake.table != first {
		t.Fatalf("second install changed the crontab:\n%q\nvs\n%q", fake.table, first)
	}
	if strings.Count(fake.table, "sentinel:watchdog") != 1 {
		t.Fatalf("duplicate managed line:\n%q", fake.table)
	}
}

func TestInstallPreservesForeignLines(t *testing.T) {
	fake := &fakeCrontab{table: "0 0 * * * /opt/backup.sh\n# a comment\n"}
	c := NewCrontab(fake, nil)
	if err := c.Install(context.Background(), testEntries()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if !strings.Contains(fake.table, "/opt/backup.sh") {
		t.Fatalf("foreign entry lost:\n%q", fake.table)
	}
	if !strings.Contains(fake.table, "# a comment") {
		t.Fatalf("comment lost:\n%q", fake.table)
	}
}

func TestInstallReplacesChangedEntry(t *testing.T) {
	fake := &fakeCrontab{absent: true}
	c := NewCrontab(fake, nil)
	ctx := context.Background()
	if err := c.Install(ctx, testEntries()); err != nil {
		t.Fatalf("install: %v", err)
	}
	changed := testEntries()
	changed[0].Expr = "*/5 * * * *"
	if err := c.Install(ctx, changed); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if !strings.Contains(fake.table, "*/5 * * * * /usr/local/bin/sentinel watch") {
		t.Fatalf("entry not replaced:\n%q", fake.table)
	}
	if strings.Contains(fake.table, "*/10 * * * *") {
		t.Fatalf("old line survived:\n%q", fake.table)
	}
}

func TestInstallRejectsBadExpression(t *testing.T) {
	fake := &fakeCrontab{absent: true}
	c := NewCrontab(fake, nil)
	bad := []Entry{{Expr: "61 * * * *", Command: "x", Label: "bad"}}
	if err := c.Install(context.Background(), bad); err == nil {
		t.Fatalf("expected validation error")
	}
	if len(fake.written) != 0 {
		t.Fatalf("invalid entry must not touch the crontab")
	}
}

func TestInstallScopedToItsOwnLabels(t *testing.T) {
	fake := &fakeCrontab{absent: true}
	c := NewCrontab(fake, nil)
	ctx := context.Background()
	if err := c.Install(ctx, testEntries()); err != nil {
		t.Fatalf("install both: %v", err)
	}
	// Reinstalling only the watchdog must not touch the optimizer entry.
	if err := c.Install(ctx, testEntries()[:1]); err != nil {
		t.Fatalf("install subset: %v", err)
	}
	if !strings.Contains(fake.table, "sentinel:optimizer") {
		t.Fatalf("install under one label deleted another label's entry:\n%q", fake.table)
	}
	if strings.Count(fake.table, "sentinel:watchdog") != 1 {
		t.Fatalf("watchdog entry duplicated:\n%q", fake.table)
	}
}

func TestRemoveSingleLabel(t *testing.T) {
	fake := &fakeCrontab{absent: true}
	c := NewCrontab(fake, nil)
	ctx := context.Background()
	if err := c.Install(ctx, testEntries()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := c.Remove(ctx, "watchdog"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if strings.Contains(fake.table, "sentinel:watchdog") {
		t.Fatalf("watchdog entry survived its removal:\n%q", fake.table)
	}
	if !strings.Contains(fake.table, "sentinel:optimizer") {
		t.Fatalf("removing one label stripped another:\n%q", fake.table)
	}
}

func TestListFiltersByLabel(t *testing.T) {
	fake := &fakeCrontab{absent: true}
	c := NewCrontab(fake, nil)
	ctx := context.Background()
	if err := c.Install(ctx, testEntries()); err != nil {
		t.Fatalf("install: %v", err)
	}
	got, err := c.List(ctx, "optimizer")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Label != "optimizer" {
		t.Fatalf("label filter: %+v", got)
	}
}

func TestRemoveOnlyManagedLines(t *testing.T) {
	fake := &fakeCrontab{table: "0 0 * * * /opt/backup.sh\n"}
	c := NewCrontab(fake, nil)
	ctx := context.Background()
	if err := c.Install(ctx, testEntries()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := c.Remove(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if strings.Contains(fake.table, "sentinel:") {
		t.Fatalf("managed lines survived remove:\n%q", fake.table)
	}
	if !strings.Contains(fake.table, "/opt/backup.sh") {
		t.Fatalf("foreign entry lost:\n%q", fake.table)
	}
}

func TestListRoundTrips(t *testing.T) {
	fake := &fakeCrontab{absent: true}
	c := NewCrontab(fake, nil)
	ctx := context.Background()
	if err := c.Install(ctx, testEntries()); err != nil {
		t.Fatalf("install: %v", err)
	}
	got, err := c.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := testEntries()
	if len(got) != len(want) {
		t.Fatalf("listed %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestListEmptyWhenNoCrontab(t *testing.T) {
	c := NewCrontab(&fakeCrontab{absent: true}, nil)
	got, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}
