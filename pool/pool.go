// Package pool executes one rank's partition as a sequence of bounded-size
// batches over a fixed set of local workers.
package pool

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/quadrant/internal/logging"
	"github.com/arloliu/quadrant/internal/metrics"
	"github.com/arloliu/quadrant/types"
)

// WorkersEnv is the environment variable overriding the worker count.
// When unset, SchedulerWorkersEnv and finally the host CPU count apply.
const WorkersEnv = "QUADRANT_POOL_WORKERS"

// SchedulerWorkersEnv is the scheduler-provided CPUs-per-task variable
// consulted when WorkersEnv is unset.
const SchedulerWorkersEnv = "SLURM_CPUS_PER_TASK"

// Kernel is the sampling kernel contract: given n trials, return the number
// of trials satisfying the predicate, 0 <= hits <= n. A kernel must be pure
// with respect to shared state; it may be called concurrently from multiple
// workers on disjoint batches.
type Kernel func(ctx context.Context, n uint64) (uint64, error)

// Pool fans a partition's trials out across local workers.
//
// Concurrency is a performance policy, not a correctness requirement: the
// concurrent and serial paths produce identical tallies for deterministic
// kernel outputs, and an infrastructure failure on the concurrent path falls
// back to serial execution of the same partition.
type Pool struct {
	workers      int
	maxBatchSize uint64
	logger       types.Logger
	metrics      types.MetricsCollector
	onFallback   func(error)
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool's logger.
func WithLogger(logger types.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the pool's metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(p *Pool) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithFallbackHandler sets a callback invoked with the concurrent path's
// error when the pool falls back to serial execution.
func WithFallbackHandler(fn func(error)) Option {
	return func(p *Pool) {
		p.onFallback = fn
	}
}

// New creates a pool with the given worker count and batch size cap.
//
// Parameters:
//   - workers: Concurrent execution units (values < 1 are clamped to 1)
//   - maxBatchSize: Upper bound on batch size (values < 1 are clamped to 1)
//   - opts: Optional settings
//
// Returns:
//   - *Pool: Configured pool
func New(workers int, maxBatchSize uint64, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	if maxBatchSize < 1 {
		maxBatchSize = 1
	}

	p := &Pool{
		workers:      workers,
		maxBatchSize: maxBatchSize,
		logger:       logging.NewNop(),
		metrics:      metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Workers returns the pool's worker count.
func (p *Pool) Workers() int { return p.workers }

// BatchSizes splits trials into batch sizes bounded by maxBatch.
//
// The result is trials/maxBatch full batches plus one remainder batch when
// trials%maxBatch > 0. The sizes sum exactly to trials; zero trials yield an
// empty sequence.
//
// Parameters:
//   - trials: The partition's trial count
//   - maxBatch: Maximum batch size (must be >= 1; 0 returns nil)
//
// Returns:
//   - []uint64: Batch sizes, all equal to maxBatch except a smaller final one
func BatchSizes(trials, maxBatch uint64) []uint64 {
	if maxBatch == 0 || trials == 0 {
		return nil
	}

	full := trials / maxBatch
	remainder := trials % maxBatch

	count := full
	if remainder > 0 {
		count++
	}

	batches := make([]uint64, 0, count)
	for range full {
		batches = append(batches, maxBatch)
	}
	if remainder > 0 {
		batches = append(batches, remainder)
	}

	return batches
}

// Run executes trials through the kernel and returns the combined tally.
//
// Concurrent execution is used only when it is expected to help: more than
// one worker configured and more than one batch of work. Otherwise all
// batches run on the calling goroutine. If the concurrent path fails for any
// reason, the whole partition is re-executed serially; only a serial kernel
// error is returned.
//
// Parameters:
//   - ctx: Context passed through to the kernel
//   - trials: The partition's trial count (0 returns a zero tally)
//   - kernel: Sampling kernel invoked once per batch
//
// Returns:
//   - types.Tally: Field-wise sum of all per-batch tallies
//   - error: Kernel error from the serial path, or nil
func (p *Pool) Run(ctx context.Context, trials uint64, kernel Kernel) (types.Tally, error) {
	if kernel == nil {
		return types.Tally{}, types.ErrKernelRequired
	}
	if trials == 0 {
		return types.Tally{}, nil
	}

	batches := BatchSizes(trials, p.maxBatchSize)

	if p.workers > 1 && trials > p.maxBatchSize {
		tally, err := p.runConcurrent(ctx, batches, kernel)
		if err == nil {
			return tally, nil
		}

		p.logger.Warn("concurrent execution failed, falling back to serial",
			"error", err, "trials", trials, "workers", p.workers)
		p.metrics.RecordPoolFallback()
		if p.onFallback != nil {
			p.onFallback(err)
		}
	}

	return p.runSerial(ctx, batches, kernel)
}

// runConcurrent dispatches batches across the worker pool and sums results.
func (p *Pool) runConcurrent(ctx context.Context, batches []uint64, kernel Kernel) (types.Tally, error) {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)

	results := make([]types.Tally, len(batches))
	for i, size := range batches {
		group.Go(func() error {
			start := time.Now()
			hits, err := kernel(gctx, size)
			if err != nil {
				return fmt.Errorf("batch of %d trials: %w", size, err)
			}
			p.metrics.RecordBatchDuration(time.Since(start).Seconds())
			results[i] = types.Tally{Hits: hits, Trials: size}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return types.Tally{}, err
	}

	// Every dispatched batch's result has been observed; summation order is
	// irrelevant since tally addition is commutative.
	return types.Sum(results...), nil
}

// runSerial executes all batches on the calling goroutine.
func (p *Pool) runSerial(ctx context.Context, batches []uint64, kernel Kernel) (types.Tally, error) {
	var total types.Tally
	for _, size := range batches {
		start := time.Now()
		hits, err := kernel(ctx, size)
		if err != nil {
			return types.Tally{}, fmt.Errorf("batch of %d trials: %w", size, err)
		}
		p.metrics.RecordBatchDuration(time.Since(start).Seconds())
		total = total.Add(types.Tally{Hits: hits, Trials: size})
	}

	return total, nil
}

// DetectWorkers resolves the local worker count: WorkersEnv override first,
// then SchedulerWorkersEnv, then the host's logical CPU count, minimum 1.
//
// Returns:
//   - int: Worker count, always >= 1
func DetectWorkers() int {
	for _, env := range []string{WorkersEnv, SchedulerWorkersEnv} {
		if raw := os.Getenv(env); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
				return n
			}
		}
	}

	if n := runtime.NumCPU(); n >= 1 {
		return n
	}

	return 1
}
