package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ktrade/sentinel/internal/alert"
	"github.com/ktrade/sentinel/internal/analysis"
	"github.com/ktrade/sentinel/internal/lockfile"
	"github.com/ktrade/sentinel/internal/metrics"
	"github.com/ktrade/sentinel/internal/store"
	"github.com/ktrade/sentinel/internal/supervisor"
)

// Outcome classifies a completed cycle.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeRefused Outcome = "refused"
)

// Run is the record of one optimization cycle. Immutable once finished.
type Run struct {
	ID         string
	Date       time.Time
	Phases     []string
	Changes    []Change
	Violations []Violation
	Summary    string
	ReportPath string
	Outcome    Outcome
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Notifier is the alert surface the orchestrator needs; satisfied by
// *alert.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, msg alert.Message)
}

// Options configures one orchestrator.
type Options struct {
	CycleTimeout  time.Duration
	Window        time.Duration
	ReportDir     string
	BotConfigPath string
	WorkDir       string
}

// Orchestrator runs the guarded optimization cycle: health check,
// performance analysis, agent proposal, envelope-checked apply, then
// report and a single alert. Never concurrent with itself.
type Orchestrator struct {
	opts     Options
	env      Envelope
	sup      *supervisor.Supervisor
	st       store.Store
	agent    Agent
	notifier Notifier
	lock     *lockfile.Lock
	logger   *slog.Logger
}

func New(opts Options, env Envelope, sup *supervisor.Supervisor, st store.Store,
	agent Agent, notifier Notifier, lock *lockfile.Lock, logger *slog.Logger) *Orchestrator {
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 30 * time.Minute
	}
	if opts.Window <= 0 {
		opts.Window = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		opts: opts, env: env, sup: sup, st: st,
		agent: agent, notifier: notifier, lock: lock, logger: logger,
	}
}

// RunCycle executes one cycle end to end. Whatever happens inside the
// phases, a finished cycle produces exactly one report artifact and exactly
// one alert. A cycle that finds the lock held returns (nil, nil) without
// side effects.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Run, error) {
	if err := o.lock.Acquire("optimizer"); err != nil {
		if errors.Is(err, lockfile.ErrHeld) {
			o.logger.Info("optimization cycle skipped, previous run still active")
			return nil, nil
		}
		return nil, fmt.Errorf("optimizer lock: %w", err)
	}
	defer o.lock.Release()

	now := time.Now()
	run := &Run{
		ID:        "opt-" + now.UTC().Format("20060102T150405Z"),
		Date:      now,
		StartedAt: now,
	}
	cctx, cancel := context.WithTimeout(ctx, o.opts.CycleTimeout)
	defer cancel()

	cmp, transcript, err := o.phases(cctx, run)
	run.FinishedAt = time.Now()
	switch {
	case err != nil:
		run.Outcome = OutcomeFailed
		run.Err = err.Error()
	case len(run.Violations) > 0:
		run.Outcome = OutcomeRefused
	default:
		run.Outcome = OutcomeSuccess
	}
	o.finish(run, cmp, transcript)
	return run, err
}

func (o *Orchestrator) phases(ctx context.Context, run *Run) (analysis.Comparison, string, error) {
	var cmp analysis.Comparison

	// Phase 1: the bot must be alive and the store consistent before the
	// agent is allowed anywhere near either.
	if o.sup.State() != supervisor.Running {
		if err := o.sup.EnsureRunning(ctx); err != nil {
			return cmp, "", fmt.Errorf("health: %w", err)
		}
	}
	if err := o.st.CheckIntegrity(ctx); err != nil {
		return cmp, "", fmt.Errorf("health: store integrity: %w", err)
	}
	run.Phases = append(run.Phases, "health")

	cmp, err := analysis.Windows(ctx, o.st, run.StartedAt, o.opts.Window)
	if err != nil {
		return cmp, "", fmt.Errorf("analysis: %w", err)
	}
	run.Phases = append(run.Phases, "analysis")
	o.logger.Info("performance analyzed",
		"trades", cmp.Current.TradeCount,
		"win_rate_pct", cmp.Current.WinRatePct,
		"pnl_delta", cmp.PnLDelta())

	proposalPath := filepath.Join(o.opts.ReportDir, "proposal.json")
	_ = os.MkdirAll(o.opts.ReportDir, 0o750)
	_ = os.Remove(proposalPath)
	res, err := o.agent.Invoke(ctx, Task{
		Instructions: o.instructions(cmp),
		ProposalPath: proposalPath,
		WorkDir:      o.opts.WorkDir,
		Timeout:      o.opts.CycleTimeout,
	})
	transcript := res.Transcript
	if res.TimedOut || errors.Is(err, context.DeadlineExceeded) {
		return cmp, transcript, fmt.Errorf("proposal: agent timed out after %s", o.opts.CycleTimeout)
	}
	if err != nil {
		return cmp, transcript, fmt.Errorf("proposal: %w", err)
	}
	if res.ExitCode != 0 {
		return cmp, transcript, fmt.Errorf("proposal: agent exited %d", res.ExitCode)
	}
	run.Phases = append(run.Phases, "proposal")

	prop, found, err := readProposal(proposalPath)
	if err != nil {
		return cmp, transcript, fmt.Errorf("proposal: %w", err)
	}
	defer os.Remove(proposalPath)
	if !found || (len(prop.Changes) == 0 && len(prop.DeleteState) == 0) {
		// Nothing to change is a normal completion.
		run.Phases = append(run.Phases, "apply")
		return cmp, transcript, nil
	}
	run.Summary = prop.Summary

	current, err := readBotConfig(o.opts.BotConfigPath)
	if err != nil {
		return cmp, transcript, fmt.Errorf("apply: read bot config: %w", err)
	}
	if vs := o.env.Check(prop, current); len(vs) > 0 {
		run.Violations = vs
		for _, v := range vs {
			o.logger.Warn("proposal refused", "field", v.Field, "reason", v.Reason)
		}
		return cmp, transcript, nil
	}

	if err := applyChanges(o.opts.BotConfigPath, prop.Changes); err != nil {
		return cmp, transcript, fmt.Errorf("apply: %w", err)
	}
	run.Changes = prop.Changes
	o.logger.Info("changes applied", "count", len(prop.Changes))
	if prop.RestartRequired {
		if err := o.sup.Restart(ctx, "optimization changes applied"); err != nil &&
			!errors.Is(err, supervisor.ErrCoolingDown) {
			return cmp, transcript, fmt.Errorf("apply: restart: %w", err)
		}
	}
	run.Phases = append(run.Phases, "apply")
	return cmp, transcript, nil
}

// finish writes the report, persists the run, updates metrics and sends the
// cycle's single alert. It deliberately uses a fresh context: the cycle's
// context may already be expired, and the bookkeeping must still happen.
func (o *Orchestrator) finish(run *Run, cmp analysis.Comparison, transcript string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	path, err := writeReport(o.opts.ReportDir, run, cmp, transcript)
	if err != nil {
		o.logger.Error("report write failed", "error", err)
	}
	run.ReportPath = path
	run.Phases = append(run.Phases, "report")

	if err := o.st.RecordRun(ctx, o.record(run)); err != nil {
		o.logger.Error("run record write failed", "error", err)
	}
	metrics.IncOptimizationRun(string(run.Outcome))
	metrics.ObserveOptimizationDuration(run.FinishedAt.Sub(run.StartedAt).Seconds())

	o.notifier.Send(ctx, o.cycleAlert(run, cmp))
	o.logger.Info("optimization cycle finished",
		"outcome", run.Outcome, "report", run.ReportPath,
		"duration", run.FinishedAt.Sub(run.StartedAt))
}

func (o *Orchestrator) cycleAlert(run *Run, cmp analysis.Comparison) alert.Message {
	switch run.Outcome {
	case OutcomeFailed:
		return alert.Urgent("Optimization Run Failed",
			fmt.Sprintf("Cycle %s failed: %s. Report: %s", run.ID, run.Err, run.ReportPath))
	case OutcomeRefused:
		body := fmt.Sprintf("Cycle %s refused %d proposed change(s). Report: %s",
			run.ID, len(run.Violations), run.ReportPath)
		for _, v := range run.Violations {
			if v.HighImpact {
				return alert.Urgent("Optimization Proposal Refused", body)
			}
		}
		return alert.Info("Optimization Proposal Refused", body)
	default:
		body := fmt.Sprintf("Cycle %s complete: %d change(s), P&L delta %.2f. Report: %s",
			run.ID, len(run.Changes), cmp.PnLDelta(), run.ReportPath)
		if len(run.Changes) == 0 {
			body = fmt.Sprintf("Cycle %s complete: no changes needed. Report: %s",
				run.ID, run.ReportPath)
		}
		return alert.Info("Optimization Run Complete", body)
	}
}

func (o *Orchestrator) record(run *Run) store.RunRecord {
	type payload struct {
		Changes    []Change    `json:"changes,omitempty"`
		Violations []Violation `json:"violations,omitempty"`
	}
	b, _ := json.Marshal(payload{Changes: run.Changes, Violations: run.Violations})
	return store.RunRecord{
		ID:          run.ID,
		Date:        run.Date,
		Phases:      strings.Join(run.Phases, ","),
		ChangesJSON: string(b),
		ReportPath:  run.ReportPath,
		Outcome:     string(run.Outcome),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
}

// instructions renders the fixed task text: current performance, the rules
// of engagement, and the proposal contract.
func (o *Orchestrator) instructions(cmp analysis.Comparison) string {
	var b strings.Builder
	b.WriteString("You are reviewing a live trading bot's configuration for incremental improvement.\n\n")
	fmt.Fprintf(&b, "Trailing window: %d trades, win rate %.1f%%, realized P&L %.2f, profit factor %.2f, max drawdown %.2f.\n",
		cmp.Current.TradeCount, cmp.Current.WinRatePct, cmp.Current.RealizedPnL,
		cmp.Current.ProfitFactor, cmp.Current.MaxDrawdown)
	fmt.Fprintf(&b, "Previous window: %d trades, win rate %.1f%%, realized P&L %.2f.\n\n",
		cmp.Previous.TradeCount, cmp.Previous.WinRatePct, cmp.Previous.RealizedPnL)
	b.WriteString("Hard limits, enforced independently of this instruction:\n")
	fmt.Fprintf(&b, "- Never raise max_position_size_pct above %.1f.\n", o.env.MaxPositionSizePct)
	fmt.Fprintf(&b, "- Never disable or remove any of: %s.\n", strings.Join(o.env.RiskFields, ", "))
	fmt.Fprintf(&b, "- Never disable all of: %s.\n", strings.Join(o.env.StrategyFlags, ", "))
	b.WriteString("- Never delete persisted state (databases, position files, logs).\n\n")
	b.WriteString("Write your proposal as JSON to the file named by SENTINEL_PROPOSAL_PATH:\n")
	b.WriteString(`{"summary": "...", "changes": [{"field": "...", "old": "...", "new": "..."}], "restart_required": true}` + "\n")
	b.WriteString("Write no proposal file if no change is warranted.\n")
	return b.String()
}

// readProposal loads the agent's proposal. An absent file means the agent
// proposed nothing.
func readProposal(path string) (Proposal, bool, error) {
	var p Proposal
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, false, nil
		}
		return p, false, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, true, nil
}
