package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/quadrant/types"
)

func TestNewNop(t *testing.T) {
	m := NewNop()

	require.NotNil(t, m)
	require.IsType(t, &NopMetrics{}, m)
}

func TestNopMetrics_DoesNotPanic(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordTrials(0, 1000)
		m.RecordTrials(-1, 0)
		m.RecordRunDuration(3, 1.5)
		m.RecordLeaderElected("node-1", 0)
		m.RecordBatchDuration(0.001)
		m.RecordPoolFallback()
		m.RecordCollective("barrier", 0.002)
		m.RecordAgentTransition(types.StateNotStarted, types.StateStarting)
		m.RecordAgentLaunchFailure()
		m.RecordAgentForcedKill()
	})
}
