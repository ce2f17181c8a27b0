package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Methods may be called concurrently from pool workers and must be
// thread-safe.
//
// This interface composes smaller, domain-focused interfaces so that tests
// and partial instrumentations can implement only what they exercise.
type MetricsCollector interface {
	RunnerMetrics
	PoolMetrics
	CommMetrics
	AgentMetrics
}

// RunnerMetrics defines metrics for driver-level operations.
type RunnerMetrics interface {
	// RecordTrials records the number of trials a rank completed.
	RecordTrials(rank int, trials uint64)

	// RecordRunDuration records the wall time of one rank's computation.
	//
	// Parameters:
	//   - rank: The reporting rank
	//   - duration: Time taken in seconds
	RecordRunDuration(rank int, duration float64)

	// RecordLeaderElected records the outcome of leader election on a host.
	RecordLeaderElected(hostname string, leaderRank int)
}

// PoolMetrics defines metrics for local worker-pool operations.
type PoolMetrics interface {
	// RecordBatchDuration records the execution latency of one batch.
	//
	// Parameters:
	//   - duration: Time taken in seconds
	RecordBatchDuration(duration float64)

	// RecordPoolFallback records a fall back from concurrent to serial
	// execution after an infrastructure failure.
	RecordPoolFallback()
}

// CommMetrics defines metrics for collective operations.
type CommMetrics interface {
	// RecordCollective records the latency of one collective call.
	//
	// Parameters:
	//   - kind: Collective kind ("barrier", "gather", "allgather", "reduce")
	//   - duration: Time taken in seconds
	RecordCollective(kind string, duration float64)
}

// AgentMetrics defines metrics for telemetry-agent supervision.
type AgentMetrics interface {
	// RecordAgentTransition records a supervisor state transition.
	RecordAgentTransition(from, to AgentState)

	// RecordAgentLaunchFailure records a failed agent launch.
	RecordAgentLaunchFailure()

	// RecordAgentForcedKill records an escalation to SIGKILL during shutdown.
	RecordAgentForcedKill()
}
