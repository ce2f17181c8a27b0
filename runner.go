package quadrant

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/quadrant/agent"
	"github.com/arloliu/quadrant/comm"
	"github.com/arloliu/quadrant/election"
	"github.com/arloliu/quadrant/internal/logging"
	"github.com/arloliu/quadrant/internal/metrics"
	"github.com/arloliu/quadrant/kernel"
	"github.com/arloliu/quadrant/pool"
	"github.com/arloliu/quadrant/types"
)

// Runner drives one rank through the full run sequence: rendezvous, leader
// election, telemetry supervision on leaders, local computation, and the
// final reduction.
//
// One Runner per rank; Run is not reentrant. Every rank of a run must call
// Run so the collective sequence stays matched across the group.
type Runner struct {
	cfg     Config
	comm    comm.Communicator
	kernel  pool.Kernel
	logger  types.Logger
	metrics types.MetricsCollector
	hooks   types.Hooks
}

// New creates a Runner for one rank.
//
// The configuration is defaulted and validated; the communicator carries the
// rank's identity and the group's size.
//
// Parameters:
//   - cfg: Run configuration, shared across ranks
//   - c: The rank's communicator
//   - opts: Optional functional options
//
// Returns:
//   - *Runner: Configured runner
//   - error: Validation error, nil on success
func New(cfg Config, c comm.Communicator, opts ...Option) (*Runner, error) {
	if c == nil {
		return nil, types.ErrCommunicatorRequired
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:     cfg,
		comm:    c,
		logger:  logging.NewSlogDefault(),
		metrics: metrics.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.kernel == nil {
		r.kernel = kernel.New(cfg.RunID, c.Rank())
	}

	return r, nil
}

// Run executes the rank's share of the run and participates in every
// collective of the sequence.
//
// The sequence is identical on every rank: barrier, leader election,
// barrier, local computation, barrier, reduce. Leaders additionally
// supervise the telemetry agent between the election and the end of the
// run; agent failures degrade telemetry but never fail the run.
//
// On the root rank the returned report summarizes the aggregate result; on
// all other ranks the report is nil.
//
// Parameters:
//   - ctx: Context bounding the whole run
//
// Returns:
//   - *Report: Final summary on root, nil elsewhere
//   - error: First fatal error in the sequence, nil on success
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	rank := r.comm.Rank()
	size := r.comm.Size()

	r.logger.Info("run starting",
		"runId", r.cfg.RunID,
		"rank", rank,
		"worldSize", size,
		"totalTrials", r.cfg.TotalTrials,
	)

	if err := r.barrier(ctx); err != nil {
		return nil, fmt.Errorf("startup rendezvous failed: %w", err)
	}

	elected, err := r.elect(ctx)
	if err != nil {
		return nil, err
	}

	sup := r.superviseAgent(ctx, elected)
	if sup != nil {
		defer sup.Stop()
	}

	if err := r.barrier(ctx); err != nil {
		return nil, fmt.Errorf("pre-compute rendezvous failed: %w", err)
	}

	local, err := r.compute(ctx, rank, size)
	if err != nil {
		return nil, err
	}

	if err := r.barrier(ctx); err != nil {
		return nil, fmt.Errorf("post-compute rendezvous failed: %w", err)
	}

	total, err := r.reduce(ctx, local)
	if err != nil {
		return nil, fmt.Errorf("reduction failed: %w", err)
	}

	if rank != comm.Root {
		r.logger.Info("run complete", "rank", rank, "localTrials", local.Trials, "localHits", local.Hits)
		return nil, nil
	}

	rep := newReport(total, size, time.Since(start))
	r.logger.Info("run complete",
		"rank", rank,
		"estimate", rep.Estimate,
		"absError", rep.AbsError,
		"totalTrials", rep.TotalTrials,
		"totalHits", rep.TotalHits,
		"elapsed", rep.Duration,
	)

	if r.hooks.OnReport != nil {
		if err := r.hooks.OnReport(ctx, total); err != nil {
			r.logger.Warn("report hook failed", "error", err.Error())
		}
	}

	return &rep, nil
}

// barrier runs one barrier under the configured collective timeout.
func (r *Runner) barrier(ctx context.Context) error {
	ctx, cancel := r.collectiveContext(ctx)
	defer cancel()

	return r.comm.Barrier(ctx)
}

func (r *Runner) elect(ctx context.Context) (election.Result, error) {
	cctx, cancel := r.collectiveContext(ctx)
	defer cancel()

	res, err := election.Elect(cctx, r.comm, r.cfg.Hostname)
	if err != nil {
		return election.Result{}, fmt.Errorf("leader election failed: %w", err)
	}

	r.logger.Info("leader elected",
		"hostname", res.Hostname,
		"leaderRank", res.LeaderRank,
		"isLeader", res.Leader,
	)
	if res.Leader {
		r.metrics.RecordLeaderElected(res.Hostname, res.LeaderRank)
	}

	if r.hooks.OnLeaderElected != nil {
		if err := r.hooks.OnLeaderElected(ctx, res.Hostname, res.LeaderRank, res.Leader); err != nil {
			r.logger.Warn("leader hook failed", "error", err.Error())
		}
	}

	return res, nil
}

// superviseAgent starts the telemetry agent when this rank leads its host.
// Launch failures are recoverable: the run proceeds without telemetry. The
// returned supervisor is nil when no agent was started.
func (r *Runner) superviseAgent(ctx context.Context, elected election.Result) *agent.Supervisor {
	if !r.cfg.Telemetry.Enabled || !elected.Leader {
		return nil
	}

	sup := agent.New(agent.Config{
		AgentPath:       r.cfg.Telemetry.AgentPath,
		AgentRuntime:    r.cfg.Telemetry.AgentRuntime,
		OutputDir:       r.cfg.Telemetry.OutputDir,
		Hostname:        r.cfg.Hostname,
		Interval:        r.cfg.Telemetry.Interval,
		GracefulTimeout: r.cfg.Telemetry.GracefulTimeout,
		ForceTimeout:    r.cfg.Telemetry.ForceTimeout,
	},
		agent.WithLogger(r.logger),
		agent.WithMetrics(r.metrics),
	)

	if err := sup.Start(); err != nil {
		r.logger.Warn("telemetry agent launch failed, continuing without telemetry",
			"hostname", r.cfg.Hostname,
			"error", err.Error(),
		)
		if r.hooks.OnError != nil {
			if herr := r.hooks.OnError(ctx, err); herr != nil {
				r.logger.Warn("error hook failed", "error", herr.Error())
			}
		}

		return nil
	}

	return sup
}

// compute runs this rank's partition through the worker pool.
func (r *Runner) compute(ctx context.Context, rank, size int) (types.Tally, error) {
	part := types.PlanFor(r.cfg.TotalTrials, size, rank)
	if part.Trials == 0 {
		// Still a full participant in the collective sequence, just with a
		// zero contribution.
		r.logger.Info("no trials assigned", "rank", rank, "worldSize", size)
	}

	workers := r.cfg.Workers
	if workers == 0 {
		workers = pool.DetectWorkers()
	}

	poolOpts := []pool.Option{
		pool.WithLogger(r.logger),
		pool.WithMetrics(r.metrics),
	}
	if r.hooks.OnError != nil {
		poolOpts = append(poolOpts, pool.WithFallbackHandler(func(err error) {
			if herr := r.hooks.OnError(ctx, err); herr != nil {
				r.logger.Warn("error hook failed", "error", herr.Error())
			}
		}))
	}

	p := pool.New(workers, r.cfg.MaxBatchSize, poolOpts...)

	computeStart := time.Now()
	local, err := p.Run(ctx, part.Trials, r.kernel)
	if err != nil {
		return types.Tally{}, fmt.Errorf("local computation failed: %w", err)
	}

	elapsed := time.Since(computeStart)
	r.metrics.RecordTrials(rank, local.Trials)
	r.metrics.RecordRunDuration(rank, elapsed.Seconds())
	r.logger.Debug("local computation done",
		"rank", rank,
		"trials", local.Trials,
		"hits", local.Hits,
		"workers", p.Workers(),
		"elapsed", elapsed,
	)

	return local, nil
}

func (r *Runner) reduce(ctx context.Context, local types.Tally) (types.Tally, error) {
	ctx, cancel := r.collectiveContext(ctx)
	defer cancel()

	return r.comm.Reduce(ctx, local)
}

// collectiveContext bounds a single collective call when CollectiveTimeout
// is configured.
func (r *Runner) collectiveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CollectiveTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, r.cfg.CollectiveTimeout)
}
