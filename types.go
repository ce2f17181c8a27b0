package quadrant

import "github.com/arloliu/quadrant/types"

// Re-exported types for API convenience; callers construct a Runner without
// importing the types package directly.
type (
	// Tally is an accumulated (hits, trials) pair.
	Tally = types.Tally

	// Partition is one rank's share of the workload.
	Partition = types.Partition

	// Hooks defines callbacks for Runner lifecycle events.
	Hooks = types.Hooks

	// Logger defines the logging interface used across the module.
	Logger = types.Logger

	// MetricsCollector defines methods for recording operational metrics.
	MetricsCollector = types.MetricsCollector

	// AgentState represents the telemetry-agent supervisor state.
	AgentState = types.AgentState
)
