package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/ktrade/sentinel/internal/runner"
)

// tag marks crontab lines owned by this tool. Only tagged lines are ever
// touched; the rest of the user's crontab passes through untouched.
const tag = "# sentinel:"

// Entry is one managed cron job. Label identifies the entry across
// installs; reinstalling a label replaces its line.
type Entry struct {
	Expr    string
	Command string
	Label   string
}

// Validate checks the cron expression against the standard five-field
// grammar (including @hourly style descriptors).
func (e Entry) Validate() error {
	if e.Label == "" {
		return fmt.Errorf("schedule entry needs a label")
	}
	if strings.TrimSpace(e.Command) == "" {
		return fmt.Errorf("schedule entry %q needs a command", e.Label)
	}
	if _, err := cron.ParseStandard(e.Expr); err != nil {
		return fmt.Errorf("schedule entry %q: %w", e.Label, err)
	}
	return nil
}

func (e Entry) line() string {
	return fmt.Sprintf("%s %s %s%s", e.Expr, e.Command, tag, e.Label)
}

// Registrar manages the supervision jobs in the system scheduler. All
// operations are scoped by label: Install replaces only the labels it
// carries, Remove and List take label filters (none means every managed
// entry).
type Registrar interface {
	Install(ctx context.Context, entries []Entry) error
	Remove(ctx context.Context, labels ...string) error
	List(ctx context.Context, labels ...string) ([]Entry, error)
}

// Crontab is the Registrar backed by the user crontab. All mutation goes
// through a single read-modify-write: strip every tagged line, append the
// new set, load the result with one `crontab -` invocation.
type Crontab struct {
	run    runner.Runner
	logger *slog.Logger
}

func NewCrontab(run runner.Runner, logger *slog.Logger) *Crontab {
	if run == nil {
		run = runner.Exec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crontab{run: run, logger: logger}
}

// Install validates every entry up front, then replaces the managed lines
// carrying the same labels. Entries under other labels are left alone.
// Running it twice with the same entries leaves the crontab byte-identical.
func (c *Crontab) Install(ctx context.Context, entries []Entry) error {
	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		labels = append(labels, e.Label)
	}
	current, err := c.read(ctx)
	if err != nil {
		return err
	}
	kept := stripTagged(current, labels)
	var b strings.Builder
	for _, line := range kept {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, e := range entries {
		b.WriteString(e.line())
		b.WriteByte('\n')
	}
	if err := c.write(ctx, b.String()); err != nil {
		return err
	}
	c.logger.Info("crontab entries installed", "count", len(entries))
	return nil
}

// Remove strips the managed lines for the given labels, or every managed
// line when none are given. Foreign entries are never touched.
func (c *Crontab) Remove(ctx context.Context, labels ...string) error {
	current, err := c.read(ctx)
	if err != nil {
		return err
	}
	kept := stripTagged(current, labels)
	removed := len(current) - len(kept)
	var b strings.Builder
	for _, line := range kept {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := c.write(ctx, b.String()); err != nil {
		return err
	}
	c.logger.Info("crontab entries removed", "count", removed)
	return nil
}

// List returns the installed managed entries for the given labels, or all
// of them when none are given.
func (c *Crontab) List(ctx context.Context, labels ...string) ([]Entry, error) {
	current, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, line := range current {
		if e, ok := parseTagged(line); ok && matchLabel(e.Label, labels) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// read returns the crontab as lines. An absent crontab reads as empty;
// `crontab -l` exits non-zero with "no crontab" on stderr in that case.
func (c *Crontab) read(ctx context.Context) ([]string, error) {
	res, err := c.run.Run(ctx, runner.Spec{Command: "crontab -l"})
	if err != nil {
		return nil, fmt.Errorf("read crontab: %w", err)
	}
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "no crontab") {
			return nil, nil
		}
		return nil, fmt.Errorf("read crontab: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	out := strings.TrimRight(res.Stdout, "\n")
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (c *Crontab) write(ctx context.Context, content string) error {
	res, err := c.run.Run(ctx, runner.Spec{
		Command: "crontab -",
		Stdin:   strings.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("write crontab: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("write crontab: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// stripTagged drops the managed lines whose label is in labels; an empty
// labels slice drops every managed line.
func stripTagged(lines []string, labels []string) []string {
	var kept []string
	for _, line := range lines {
		if idx := strings.Index(line, tag); idx >= 0 {
			label := strings.TrimSpace(line[idx+len(tag):])
			if matchLabel(label, labels) {
				continue
			}
		}
		kept = append(kept, line)
	}
	return kept
}

func matchLabel(label string, labels []string) bool {
	if len(labels) == 0 {
		return true
	}
	return slices.Contains(labels, label)
}

// parseTagged splits a managed line back into an Entry. The expression is
// the first five fields (descriptors like @hourly are a single field).
func parseTagged(line string) (Entry, bool) {
	idx := strings.Index(line, tag)
	if idx < 0 {
		return Entry{}, false
	}
	label := strings.TrimSpace(line[idx+len(tag):])
	rest := strings.TrimSpace(line[:idx])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Entry{}, false
	}
	n := 5
	if strings.HasPrefix(fields[0], "@") {
		n = 1
	}
	if len(fields) <= n {
		return Entry{}, false
	}
	return Entry{
		Expr:    strings.Join(fields[:n], " "),
		Command: strings.Join(fields[n:], " "),
		Label:   label,
	}, true
}
