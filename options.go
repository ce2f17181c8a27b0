package quadrant

import (
	"github.com/arloliu/quadrant/pool"
	"github.com/arloliu/quadrant/types"
)

// Option is a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the Runner and its subcomponents.
//
// Parameters:
//   - logger: Logger implementation to use
//
// Returns:
//   - Option: Functional option
func WithLogger(logger types.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector for the Runner and its
// subcomponents. Defaults to a no-op collector.
//
// Parameters:
//   - m: Metrics collector implementation
//
// Returns:
//   - Option: Functional option
func WithMetrics(m types.MetricsCollector) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithHooks sets lifecycle callbacks on the Runner.
//
// Parameters:
//   - hooks: Callbacks invoked at run lifecycle points
//
// Returns:
//   - Option: Functional option
func WithHooks(hooks types.Hooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithKernel replaces the built-in sampling kernel. Mainly useful for tests
// and for reusing the collective machinery with a different estimator.
//
// Parameters:
//   - kernel: Batch function executed by the worker pool
//
// Returns:
//   - Option: Functional option
func WithKernel(kernel pool.Kernel) Option {
	return func(r *Runner) {
		if kernel != nil {
			r.kernel = kernel
		}
	}
}
