// Package agent supervises the per-host telemetry agent subprocess on an
// elected leader rank: launch into an own process group, hold the handle for
// the duration of the run, and tear down with graceful-then-forced signaling
// at exit.
package agent

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/arloliu/quadrant/internal/logging"
	"github.com/arloliu/quadrant/internal/metrics"
	"github.com/arloliu/quadrant/types"
)

const (
	// DefaultGracefulTimeout bounds the wait for voluntary exit after SIGINT.
	DefaultGracefulTimeout = 10 * time.Second

	// DefaultForceTimeout bounds the wait for reaping after SIGKILL.
	DefaultForceTimeout = 5 * time.Second

	// DefaultInterval is the agent's sampling cadence.
	DefaultInterval = 3 * time.Second
)

// Config describes the agent invocation and shutdown policy.
type Config struct {
	// AgentPath is the agent executable or script to launch.
	AgentPath string `yaml:"agentPath"`

	// AgentRuntime optionally names an interpreter to run AgentPath with
	// (e.g. a python executable). Empty means AgentPath is executed directly.
	AgentRuntime string `yaml:"agentRuntime"`

	// OutputDir receives the agent's CSV and the stdout/stderr capture file.
	OutputDir string `yaml:"outputDir"`

	// Hostname names this host; it is embedded in the output file names so
	// one agent per host never collides with another host's files.
	Hostname string `yaml:"hostname"`

	// Interval is the agent's sampling cadence, passed through on the
	// command line in whole seconds.
	Interval time.Duration `yaml:"interval"`

	// GracefulTimeout bounds the wait for voluntary exit after the
	// interrupt signal. Zero means DefaultGracefulTimeout.
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`

	// ForceTimeout bounds the wait for reaping after the kill signal.
	// Zero means DefaultForceTimeout.
	ForceTimeout time.Duration `yaml:"forceTimeout"`
}

// Supervisor owns at most one telemetry-agent subprocess.
//
// Lifecycle: Start launches the agent on the elected leader; Stop tears it
// down and is safe to invoke from any exit path, any number of times. At
// most one Supervisor exists per leader process; non-leader ranks never
// construct one.
type Supervisor struct {
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector

	mu      sync.Mutex
	state   types.AgentState
	cmd     *exec.Cmd
	pgid    int
	waitCh  chan error
	capture *os.File
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor's logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the supervisor's metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(s *Supervisor) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a supervisor for the given agent configuration.
//
// Parameters:
//   - cfg: Agent invocation and shutdown policy (zero timeouts get defaults)
//   - opts: Optional settings
//
// Returns:
//   - *Supervisor: Supervisor in StateNotStarted
func New(cfg Config, opts ...Option) *Supervisor {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	if cfg.ForceTimeout <= 0 {
		cfg.ForceTimeout = DefaultForceTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	s := &Supervisor{
		cfg:     cfg,
		state:   types.StateNotStarted,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() types.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Pid returns the agent's process id, or 0 when no agent is running.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}

	return s.cmd.Process.Pid
}

// OutputPath returns the agent's CSV destination for this host.
func (s *Supervisor) OutputPath() string {
	return filepath.Join(s.cfg.OutputDir, "system_metrics_"+s.cfg.Hostname+".csv")
}

// CapturePath returns the agent's stdout/stderr capture file for this host.
func (s *Supervisor) CapturePath() string {
	return filepath.Join(s.cfg.OutputDir, "agent_out_"+s.cfg.Hostname+".txt")
}

// Start launches the agent subprocess in its own process group.
//
// On launch failure no handle is recorded: the supervisor returns to
// StateNotStarted, a subsequent Stop is a no-op, and the returned error
// wraps types.ErrAgentLaunch so callers can log it and proceed without
// telemetry. Launch failure never aborts the overall computation.
//
// Returns:
//   - error: types.ErrAgentAlreadyStarted, or a wrapped launch error
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.StateNotStarted {
		return types.ErrAgentAlreadyStarted
	}
	s.transition(types.StateStarting)

	if err := s.launch(); err != nil {
		s.transition(types.StateNotStarted)
		s.metrics.RecordAgentLaunchFailure()
		s.logger.Error("failed to launch telemetry agent, run proceeds without telemetry",
			"host", s.cfg.Hostname, "agent", s.cfg.AgentPath, "error", err)

		return fmt.Errorf("%w: %w", types.ErrAgentLaunch, err)
	}

	s.transition(types.StateRunning)
	s.logger.Info("telemetry agent started",
		"host", s.cfg.Hostname,
		"pid", s.cmd.Process.Pid,
		"output", s.OutputPath(),
		"capture", s.CapturePath(),
	)

	return nil
}

// launch builds the invocation and starts the child. Caller holds s.mu.
func (s *Supervisor) launch() error {
	if s.cfg.AgentPath == "" {
		return fmt.Errorf("agent path is empty")
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	capture, err := os.Create(s.CapturePath())
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}

	args := []string{
		"--output", s.OutputPath(),
		"--interval", strconv.Itoa(int(s.cfg.Interval / time.Second)),
	}

	var cmd *exec.Cmd
	if s.cfg.AgentRuntime != "" {
		cmd = exec.Command(s.cfg.AgentRuntime, append([]string{s.cfg.AgentPath}, args...)...)
	} else {
		cmd = exec.Command(s.cfg.AgentPath, args...)
	}
	cmd.Stdout = capture
	cmd.Stderr = capture
	// Own process group, so one signal reaches the agent and everything it
	// spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		capture.Close()
		return fmt.Errorf("failed to start agent process: %w", err)
	}

	s.cmd = cmd
	s.pgid = cmd.Process.Pid
	s.capture = capture
	s.waitCh = make(chan error, 1)
	go func() {
		s.waitCh <- cmd.Wait()
	}()

	return nil
}

// Stop tears the agent down: interrupt the process group, wait up to the
// graceful timeout, escalate to an unconditional kill if needed, then clear
// the handle.
//
// Stop is the run-scope finalizer: it is invoked via defer on every exit
// path of the leader's run and must therefore be idempotent; a second call
// with a cleared handle is a no-op. All waits are bounded, so Stop never
// blocks indefinitely, and shutdown failures are logged, never returned as
// run failures.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.StateRunning {
		return
	}

	pid := s.cmd.Process.Pid
	s.transition(types.StateStoppingGraceful)
	s.logger.Info("stopping telemetry agent", "host", s.cfg.Hostname, "pid", pid)

	if err := unix.Kill(-s.pgid, unix.SIGINT); err != nil {
		s.logger.Warn("failed to interrupt agent process group",
			"host", s.cfg.Hostname, "pid", pid, "error", err)
	}

	select {
	case err := <-s.waitCh:
		s.logger.Info("telemetry agent exited after interrupt",
			"host", s.cfg.Hostname, "pid", pid, "waitResult", errString(err))
	case <-time.After(s.cfg.GracefulTimeout):
		s.transition(types.StateStoppingForced)
		s.metrics.RecordAgentForcedKill()
		s.logger.Warn("telemetry agent ignored interrupt, sending kill",
			"host", s.cfg.Hostname, "pid", pid, "gracefulTimeout", s.cfg.GracefulTimeout)

		if err := unix.Kill(-s.pgid, unix.SIGKILL); err != nil {
			s.logger.Error("failed to kill agent process group",
				"host", s.cfg.Hostname, "pid", pid, "error", err)
		}

		select {
		case err := <-s.waitCh:
			s.logger.Info("telemetry agent reaped after kill",
				"host", s.cfg.Hostname, "pid", pid, "waitResult", errString(err))
		case <-time.After(s.cfg.ForceTimeout):
			// Auxiliary process; log and move on rather than failing the run.
			s.logger.Error("telemetry agent not reaped within force timeout",
				"host", s.cfg.Hostname, "pid", pid, "forceTimeout", s.cfg.ForceTimeout)
		}
	}

	s.capture.Close()
	s.cmd = nil
	s.pgid = 0
	s.capture = nil
	s.transition(types.StateStopped)
}

// transition updates state and records the metric. Caller holds s.mu.
func (s *Supervisor) transition(to types.AgentState) {
	from := s.state
	s.state = to
	s.metrics.RecordAgentTransition(from, to)
}

func errString(err error) string {
	if err == nil {
		return "clean exit"
	}

	return err.Error()
}
