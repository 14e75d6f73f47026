package optimizer

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/ktrade/sentinel/internal/runner"
)

// Task is the fixed specification handed to the optimization agent. The
// instructions carry the analysis summary and the safety envelope verbatim;
// the agent must write its proposal as JSON to ProposalPath.
type Task struct {
	Instructions string
	ProposalPath string
	WorkDir      string
	Timeout      time.Duration
}

// RunResult is the typed outcome of one agent invocation.
type RunResult struct {
	ExitCode   int
	Transcript string
	Duration   time.Duration
	TimedOut   bool
}

// Agent is the opaque capability performing the actual optimization work.
// The orchestrator only sees exit status and transcript; every change the
// agent wants applied goes through the proposal file and the envelope check.
type Agent interface {
	Invoke(ctx context.Context, task Task) (RunResult, error)
}

// CLIAgent invokes an external agent command. Instructions arrive on stdin;
// the proposal path is exported as SENTINEL_PROPOSAL_PATH.
type CLIAgent struct {
	Command string
	Run     runner.Runner
}

func NewCLIAgent(command string) *CLIAgent {
	return &CLIAgent{Command: command, Run: runner.Exec{}}
}

func (a *CLIAgent) Invoke(ctx context.Context, task Task) (RunResult, error) {
	res, err := a.Run.Run(ctx, runner.Spec{
		Command: a.Command,
		WorkDir: task.WorkDir,
		Env:     append(os.Environ(), "SENTINEL_PROPOSAL_PATH="+task.ProposalPath),
		Stdin:   strings.NewReader(task.Instructions),
		Timeout: task.Timeout,
	})
	out := RunResult{
		ExitCode:   res.ExitCode,
		Transcript: res.Stdout + res.Stderr,
		Duration:   res.Duration,
		TimedOut:   res.TimedOut,
	}
	return out, err
}
