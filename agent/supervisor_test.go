package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/quadrant/internal/logging"
	"github.com/arloliu/quadrant/types"
)

// writeScript writes an executable shell script into dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)
	require.NoError(t, err)

	return path
}

// testConfig returns a supervisor config with short shutdown timeouts.
func testConfig(t *testing.T, agentPath string) Config {
	t.Helper()

	return Config{
		AgentPath:       agentPath,
		OutputDir:       t.TempDir(),
		Hostname:        "test-host",
		Interval:        time.Second,
		GracefulTimeout: 500 * time.Millisecond,
		ForceTimeout:    2 * time.Second,
	}
}

func TestSupervisor_GracefulStop(t *testing.T) {
	// The agent honors SIGINT: it must exit within the graceful timeout and
	// no kill signal may be needed.
	script := writeScript(t, t.TempDir(), "agent.sh", "sleep 30\n")

	recorder := &transitionRecorder{}
	sup := New(testConfig(t, script),
		WithLogger(logging.NewTest(t)),
		WithMetrics(recorder),
	)

	require.Equal(t, types.StateNotStarted, sup.State())
	require.NoError(t, sup.Start())
	require.Equal(t, types.StateRunning, sup.State())
	require.NotZero(t, sup.Pid())

	sup.Stop()

	require.Equal(t, types.StateStopped, sup.State())
	require.Zero(t, sup.Pid())
	require.Zero(t, recorder.forcedKills, "no forced kill on a cooperative agent")
	require.NotContains(t, recorder.states, types.StateStoppingForced)
}

func TestSupervisor_ForcedStop(t *testing.T) {
	// The agent ignores SIGINT: the supervisor must escalate to SIGKILL
	// exactly once and still reach StateStopped.
	script := writeScript(t, t.TempDir(), "stubborn.sh",
		"trap '' INT\nwhile :; do sleep 0.1; done\n")

	recorder := &transitionRecorder{}
	sup := New(testConfig(t, script),
		WithLogger(logging.NewTest(t)),
		WithMetrics(recorder),
	)

	require.NoError(t, sup.Start())
	sup.Stop()

	require.Equal(t, types.StateStopped, sup.State())
	require.Equal(t, 1, recorder.forcedKills)
	require.Contains(t, recorder.states, types.StateStoppingForced)
}

func TestSupervisor_StopIdempotent(t *testing.T) {
	script := writeScript(t, t.TempDir(), "agent.sh", "sleep 30\n")

	sup := New(testConfig(t, script), WithLogger(logging.NewTest(t)))
	require.NoError(t, sup.Start())

	sup.Stop()
	require.Equal(t, types.StateStopped, sup.State())

	// Second invocation with a cleared handle is a no-op.
	require.NotPanics(t, sup.Stop)
	require.Equal(t, types.StateStopped, sup.State())
}

func TestSupervisor_StopWithoutStart(t *testing.T) {
	sup := New(testConfig(t, "/bin/true"))

	require.NotPanics(t, sup.Stop)
	require.Equal(t, types.StateNotStarted, sup.State())
}

func TestSupervisor_LaunchFailure(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing-agent"))

	recorder := &transitionRecorder{}
	sup := New(cfg, WithLogger(logging.NewTest(t)), WithMetrics(recorder))

	err := sup.Start()
	require.ErrorIs(t, err, types.ErrAgentLaunch)
	require.Equal(t, types.StateNotStarted, sup.State())
	require.Equal(t, 1, recorder.launchFailures)

	// No handle recorded: teardown is a no-op.
	require.NotPanics(t, sup.Stop)
	require.Equal(t, types.StateNotStarted, sup.State())
}

func TestSupervisor_DoubleStart(t *testing.T) {
	script := writeScript(t, t.TempDir(), "agent.sh", "sleep 30\n")

	sup := New(testConfig(t, script))
	require.NoError(t, sup.Start())
	t.Cleanup(sup.Stop)

	require.ErrorIs(t, sup.Start(), types.ErrAgentAlreadyStarted)
}

func TestSupervisor_InvocationArguments(t *testing.T) {
	// The agent records its argv; the supervisor must pass the derived
	// output path and the interval in whole seconds.
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := writeScript(t, dir, "agent.sh", "echo \"$@\" > "+argsFile+"\nsleep 30\n")

	cfg := testConfig(t, script)
	cfg.Interval = 3 * time.Second

	sup := New(cfg, WithLogger(logging.NewTest(t)))
	require.NoError(t, sup.Start())
	t.Cleanup(sup.Stop)

	require.Eventually(t, func() bool {
		_, err := os.Stat(argsFile)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(raw), "--output "+sup.OutputPath())
	require.Contains(t, string(raw), "--interval 3")
}

func TestSupervisor_CaptureFileCreated(t *testing.T) {
	script := writeScript(t, t.TempDir(), "agent.sh", "echo hello\nsleep 30\n")

	sup := New(testConfig(t, script), WithLogger(logging.NewTest(t)))
	require.NoError(t, sup.Start())
	t.Cleanup(sup.Stop)

	require.FileExists(t, sup.CapturePath())
}

// transitionRecorder is a MetricsCollector capturing supervisor events.
type transitionRecorder struct {
	states         []types.AgentState
	forcedKills    int
	launchFailures int
}

func (r *transitionRecorder) RecordTrials(int, uint64)            {}
func (r *transitionRecorder) RecordRunDuration(int, float64)      {}
func (r *transitionRecorder) RecordLeaderElected(string, int)     {}
func (r *transitionRecorder) RecordBatchDuration(float64)         {}
func (r *transitionRecorder) RecordPoolFallback()                 {}
func (r *transitionRecorder) RecordCollective(string, float64)    {}
func (r *transitionRecorder) RecordAgentLaunchFailure()           { r.launchFailures++ }
func (r *transitionRecorder) RecordAgentForcedKill()              { r.forcedKills++ }
func (r *transitionRecorder) RecordAgentTransition(_, to types.AgentState) {
	r.states = append(r.states, to)
}
