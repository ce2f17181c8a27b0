// Package metrics provides MetricsCollector implementations: a no-op
// collector for silent operation and a Prometheus-backed collector.
package metrics

import "github.com/arloliu/quadrant/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external metrics
// collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RunnerMetrics implementation

// RecordTrials discards the trial count metric.
func (n *NopMetrics) RecordTrials(_ /* rank */ int, _ /* trials */ uint64) {
	// No-op
}

// RecordRunDuration discards the run duration metric.
func (n *NopMetrics) RecordRunDuration(_ /* rank */ int, _ /* duration */ float64) {
	// No-op
}

// RecordLeaderElected discards the leader election metric.
func (n *NopMetrics) RecordLeaderElected(_ /* hostname */ string, _ /* leaderRank */ int) {
	// No-op
}

// PoolMetrics implementation

// RecordBatchDuration discards the batch duration metric.
func (n *NopMetrics) RecordBatchDuration(_ /* duration */ float64) {
	// No-op
}

// RecordPoolFallback discards the pool fallback counter.
func (n *NopMetrics) RecordPoolFallback() {
	// No-op
}

// CommMetrics implementation

// RecordCollective discards the collective latency metric.
func (n *NopMetrics) RecordCollective(_ /* kind */ string, _ /* duration */ float64) {
	// No-op
}

// AgentMetrics implementation

// RecordAgentTransition discards the supervisor state transition metric.
func (n *NopMetrics) RecordAgentTransition(_ /* from */, _ /* to */ types.AgentState) {
	// No-op
}

// RecordAgentLaunchFailure discards the launch failure counter.
func (n *NopMetrics) RecordAgentLaunchFailure() {
	// No-op
}

// RecordAgentForcedKill discards the forced kill counter.
func (n *NopMetrics) RecordAgentForcedKill() {
	// No-op
}
