package quadrant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/quadrant/comm"
	"github.com/arloliu/quadrant/internal/logging"
	"github.com/arloliu/quadrant/pool"
	"github.com/arloliu/quadrant/types"
)

// halfKernel deterministically reports every second trial as a hit, so the
// aggregate estimate is exactly 2.0 for any even trial count.
func halfKernel(_ context.Context, n uint64) (uint64, error) {
	return n / 2, nil
}

// runGroup drives one run across an in-process group and returns the root's
// report plus each rank's error.
func runGroup(t *testing.T, cfg Config, size int, opts func(rank int) []Option) (*Report, []error) {
	t.Helper()

	comms, err := comm.NewLocalGroup(size)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		report  *Report
		runErrs = make([]error, size)
	)

	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer comms[rank].Close()

			rankOpts := []Option{WithLogger(logging.NewTest(t))}
			if opts != nil {
				rankOpts = append(rankOpts, opts(rank)...)
			}

			runner, err := New(cfg, comms[rank], rankOpts...)
			if err != nil {
				runErrs[rank] = err
				return
			}

			rep, err := runner.Run(ctx)
			runErrs[rank] = err
			if rep != nil {
				mu.Lock()
				report = rep
				mu.Unlock()
			}
		}(rank)
	}
	wg.Wait()

	return report, runErrs
}

func TestRunner_FullSequence(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalTrials = 10_000

	report, errs := runGroup(t, cfg, 4, func(_ int) []Option {
		return []Option{WithKernel(halfKernel)}
	})

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}

	require.NotNil(t, report)
	require.Equal(t, uint64(10_000), report.TotalTrials)
	require.Equal(t, uint64(5_000), report.TotalHits)
	require.InDelta(t, 2.0, report.Estimate, 1e-9)
	require.Equal(t, 4, report.WorldSize)
}

func TestRunner_UnevenPartition(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalTrials = 10
	cfg.MaxBatchSize = 4

	var (
		mu     sync.Mutex
		trials = make(map[int]uint64)
	)

	countingKernel := func(rank int) pool.Kernel {
		return func(_ context.Context, n uint64) (uint64, error) {
			mu.Lock()
			trials[rank] += n
			mu.Unlock()

			return n, nil
		}
	}

	report, errs := runGroup(t, cfg, 3, func(rank int) []Option {
		return []Option{WithKernel(countingKernel(rank))}
	})

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}

	require.NotNil(t, report)
	require.Equal(t, uint64(10), report.TotalTrials)

	// 10 trials over 3 ranks: remainder goes to the low ranks.
	require.Equal(t, uint64(4), trials[0])
	require.Equal(t, uint64(3), trials[1])
	require.Equal(t, uint64(3), trials[2])
}

func TestRunner_ZeroTrialRanksParticipate(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalTrials = 2

	report, errs := runGroup(t, cfg, 4, func(_ int) []Option {
		return []Option{WithKernel(halfKernel)}
	})

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}

	require.NotNil(t, report)
	require.Equal(t, uint64(2), report.TotalTrials)
}

func TestRunner_RealKernelConverges(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalTrials = 400_000
	cfg.MaxBatchSize = 50_000

	report, errs := runGroup(t, cfg, 2, nil)

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}

	require.NotNil(t, report)
	require.InDelta(t, 3.14159, report.Estimate, 0.05)
	require.Less(t, report.AbsError, 0.05)
}

func TestRunner_Hooks(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalTrials = 1_000

	var (
		mu        sync.Mutex
		elections int
		reports   int
		leaders   []int
	)

	hooks := Hooks{
		OnLeaderElected: func(_ context.Context, _ string, leaderRank int, isLeader bool) error {
			mu.Lock()
			defer mu.Unlock()
			elections++
			if isLeader {
				leaders = append(leaders, leaderRank)
			}

			return nil
		},
		OnReport: func(_ context.Context, total types.Tally) error {
			mu.Lock()
			defer mu.Unlock()
			reports++
			require.Equal(t, uint64(1_000), total.Trials)

			return nil
		},
	}

	report, errs := runGroup(t, cfg, 3, func(_ int) []Option {
		return []Option{WithKernel(halfKernel), WithHooks(hooks)}
	})

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	require.NotNil(t, report)

	// Every rank sees the election; in-process ranks share one hostname so
	// rank 0 is the single leader. Only the root reports.
	require.Equal(t, 3, elections)
	require.Equal(t, []int{0}, leaders)
	require.Equal(t, 1, reports)
}

func TestRunner_HookErrorsAreNonFatal(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalTrials = 1_000

	hooks := Hooks{
		OnLeaderElected: func(context.Context, string, int, bool) error {
			return errors.New("hook blew up")
		},
		OnReport: func(context.Context, types.Tally) error {
			return errors.New("hook blew up")
		},
	}

	report, errs := runGroup(t, cfg, 2, func(_ int) []Option {
		return []Option{WithKernel(halfKernel), WithHooks(hooks)}
	})

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	require.NotNil(t, report)
}

func TestRunner_PoolFallbackInvokesOnError(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalTrials = 10_000
	cfg.MaxBatchSize = 1_000
	cfg.Workers = 4

	var (
		mu        sync.Mutex
		fallbacks []error
	)
	hooks := Hooks{
		OnError: func(_ context.Context, err error) error {
			mu.Lock()
			defer mu.Unlock()
			fallbacks = append(fallbacks, err)

			return nil
		},
	}

	// Rank 0's kernel fails its first concurrent batch, forcing the serial
	// fallback; the retry then succeeds on the full partition.
	flakyOnRoot := func(rank int) pool.Kernel {
		var calls atomic.Uint64

		return func(_ context.Context, n uint64) (uint64, error) {
			if rank == 0 && calls.Add(1) <= 1 {
				return 0, errors.New("worker scratch allocation failed")
			}

			return n / 2, nil
		}
	}

	report, errs := runGroup(t, cfg, 2, func(rank int) []Option {
		return []Option{WithKernel(flakyOnRoot(rank)), WithHooks(hooks)}
	})

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	require.NotNil(t, report)
	require.Equal(t, uint64(10_000), report.TotalTrials, "fallback must still process the full partition")

	require.Len(t, fallbacks, 1)
	require.ErrorContains(t, fallbacks[0], "worker scratch allocation failed")
}

func TestRunner_TelemetryLeaderOnly(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "agent.sh")
	body := "#!/bin/sh\necho started \"$@\"\nwhile :; do sleep 0.1; done\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	cfg := TestConfig()
	cfg.TotalTrials = 50_000
	cfg.MaxBatchSize = 5_000
	cfg.Hostname = "test-host"
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.AgentPath = script
	cfg.Telemetry.OutputDir = dir

	report, errs := runGroup(t, cfg, 3, nil)

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	require.NotNil(t, report)

	// The leader captured the agent's output; exactly one capture file per
	// host, regardless of rank count.
	capture := filepath.Join(dir, "agent_out_test-host.txt")
	raw, err := os.ReadFile(capture)
	require.NoError(t, err)
	require.Contains(t, string(raw), "started")
	require.Contains(t, string(raw), filepath.Join(dir, "system_metrics_test-host.csv"))
}

func TestRunner_TelemetryLaunchFailureIsRecoverable(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalTrials = 1_000
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.AgentPath = "/nonexistent/agent"
	cfg.Telemetry.OutputDir = t.TempDir()

	var agentErrs int
	hooks := Hooks{
		OnError: func(_ context.Context, err error) error {
			if errors.Is(err, ErrAgentLaunch) {
				agentErrs++
			}

			return nil
		},
	}

	report, errs := runGroup(t, cfg, 2, func(_ int) []Option {
		return []Option{WithKernel(halfKernel), WithHooks(hooks)}
	})

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	require.NotNil(t, report)
	require.Equal(t, 1, agentErrs)
}

func TestNew_Validation(t *testing.T) {
	comms, err := comm.NewLocalGroup(1)
	require.NoError(t, err)
	defer comms[0].Close()

	t.Run("nil communicator", func(t *testing.T) {
		_, err := New(TestConfig(), nil)
		require.ErrorIs(t, err, ErrCommunicatorRequired)
	})

	t.Run("negative workers", func(t *testing.T) {
		cfg := TestConfig()
		cfg.Workers = -1
		_, err := New(cfg, comms[0])
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("telemetry without agent path", func(t *testing.T) {
		cfg := TestConfig()
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.AgentPath = ""
		_, err := New(cfg, comms[0])
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("defaults applied", func(t *testing.T) {
		cfg := Config{RunID: "r", TotalTrials: 10}
		r, err := New(cfg, comms[0])
		require.NoError(t, err)
		require.Equal(t, DefaultConfig().MaxBatchSize, r.cfg.MaxBatchSize)
		require.NotEmpty(t, r.cfg.Hostname)
	})
}

func TestReport_String(t *testing.T) {
	rep := newReport(types.Tally{Hits: 785, Trials: 1000}, 4, 1500*time.Millisecond)
	s := rep.String()
	require.Contains(t, s, "pi=3.14000000")
	require.Contains(t, s, "ranks=4")
	require.Contains(t, s, fmt.Sprintf("trials=%d", 1000))
}

func TestReport_ZeroTrials(t *testing.T) {
	rep := newReport(types.Tally{}, 2, time.Second)
	require.Zero(t, rep.Estimate)
	require.Zero(t, rep.AbsError)
}
