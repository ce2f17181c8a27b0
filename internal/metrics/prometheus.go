package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/quadrant/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	trialsCounter      *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	leaderGauge        *prometheus.GaugeVec
	batchDuration      prometheus.Histogram
	poolFallbacks      prometheus.Counter
	collectiveLatency  *prometheus.HistogramVec
	agentTransitions   *prometheus.CounterVec
	agentLaunchFailure prometheus.Counter
	agentForcedKills   prometheus.Counter
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "quadrant" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "quadrant"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.trialsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "trials_total",
			Help:      "Total trials completed, by rank.",
		}, []string{"rank"})

		p.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one rank's computation in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms .. ~200s
		}, []string{"rank"})

		p.leaderGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "host_leader_rank",
			Help:      "Rank elected leader for the host.",
		}, []string{"host"})

		p.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "batch_duration_seconds",
			Help:      "Execution latency of one batch in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~16s
		})

		p.poolFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "serial_fallbacks_total",
			Help:      "Total fallbacks from concurrent to serial execution.",
		})

		p.collectiveLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "comm",
			Name:      "collective_latency_seconds",
			Help:      "Latency of collective operations in seconds by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~8s
		}, []string{"kind"})

		p.agentTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "agent",
			Name:      "state_transitions_total",
			Help:      "Total supervisor state transitions by from/to state.",
		}, []string{"from", "to"})

		p.agentLaunchFailure = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "agent",
			Name:      "launch_failures_total",
			Help:      "Total failed telemetry agent launches.",
		})

		p.agentForcedKills = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "agent",
			Name:      "forced_kills_total",
			Help:      "Total escalations to SIGKILL during agent shutdown.",
		})

		collectors := []prometheus.Collector{
			p.trialsCounter, p.runDuration, p.leaderGauge,
			p.batchDuration, p.poolFallbacks, p.collectiveLatency,
			p.agentTransitions, p.agentLaunchFailure, p.agentForcedKills,
		}
		for _, c := range collectors {
			// AlreadyRegisteredError is tolerated so multiple runners can
			// share one registry in tests.
			if err := p.reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}

// RecordTrials records the number of trials a rank completed.
func (p *PrometheusCollector) RecordTrials(rank int, trials uint64) {
	p.ensureRegistered()
	p.trialsCounter.WithLabelValues(rankLabel(rank)).Add(float64(trials))
}

// RecordRunDuration records the wall time of one rank's computation.
func (p *PrometheusCollector) RecordRunDuration(rank int, duration float64) {
	p.ensureRegistered()
	p.runDuration.WithLabelValues(rankLabel(rank)).Observe(duration)
}

// RecordLeaderElected records the outcome of leader election on a host.
func (p *PrometheusCollector) RecordLeaderElected(hostname string, leaderRank int) {
	p.ensureRegistered()
	p.leaderGauge.WithLabelValues(hostname).Set(float64(leaderRank))
}

// RecordBatchDuration records the execution latency of one batch.
func (p *PrometheusCollector) RecordBatchDuration(duration float64) {
	p.ensureRegistered()
	p.batchDuration.Observe(duration)
}

// RecordPoolFallback records a fallback from concurrent to serial execution.
func (p *PrometheusCollector) RecordPoolFallback() {
	p.ensureRegistered()
	p.poolFallbacks.Inc()
}

// RecordCollective records the latency of one collective call.
func (p *PrometheusCollector) RecordCollective(kind string, duration float64) {
	p.ensureRegistered()
	p.collectiveLatency.WithLabelValues(kind).Observe(duration)
}

// RecordAgentTransition records a supervisor state transition.
func (p *PrometheusCollector) RecordAgentTransition(from, to types.AgentState) {
	p.ensureRegistered()
	p.agentTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordAgentLaunchFailure records a failed agent launch.
func (p *PrometheusCollector) RecordAgentLaunchFailure() {
	p.ensureRegistered()
	p.agentLaunchFailure.Inc()
}

// RecordAgentForcedKill records an escalation to SIGKILL during shutdown.
func (p *PrometheusCollector) RecordAgentForcedKill() {
	p.ensureRegistered()
	p.agentForcedKills.Inc()
}

func rankLabel(rank int) string {
	return strconv.Itoa(rank)
}
