package supervisor

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	gops "github.com/shirou/gopsutil/v4/process"
)

// State is the observed state of the bot process. It is derived from the
// OS process table on every query, never cached across ticks.
type State int

const (
	Stopped State = iota
	// Starting covers the settle window inside start(), which runs to
	// completion within a single invocation. The process-table probe has no
	// record of an in-flight start and therefore never returns Starting; it
	// exists for embedders that track their own start calls.
	Starting
	Running
	Unknown
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// State probes the process table. Detection order follows the pidfile
// first, then a command-line match as fallback for a bot started outside
// the supervisor (or after a lost pidfile).
func (s *Supervisor) State() State {
	if pid, ok := s.readPIDFile(); ok && pidAlive(pid) {
		return Running
	}
	if s.opts.ProcessMatch == "" {
		return Stopped
	}
	procs, err := gops.Processes()
	if err != nil {
		return Unknown
	}
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, s.opts.ProcessMatch) {
			// Re-adopt: record the found PID so stop/restart can act on it.
			s.writePIDFile(int(p.Pid))
			return Running
		}
	}
	return Stopped
}

func (s *Supervisor) readPIDFile() (int, bool) {
	if s.opts.PIDFile == "" {
		return 0, false
	}
	b, err := os.ReadFile(s.opts.PIDFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (s *Supervisor) writePIDFile(pid int) {
	if s.opts.PIDFile == "" || pid <= 0 {
		return
	}
	_ = os.WriteFile(s.opts.PIDFile, []byte(strconv.Itoa(pid)), 0o600)
}

func (s *Supervisor) removePIDFile() {
	if s.opts.PIDFile == "" {
		return
	}
	_ = os.Remove(s.opts.PIDFile)
}

// pidAlive reports whether a process with the given pid exists (or EPERM).
// A zombie child that has exited but not been reaped does not count.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// isZombie reports a Z state in /proc/<pid>/status on Linux.
func isZombie(pid int) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
