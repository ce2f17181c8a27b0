package types

import "context"

// Hooks defines callbacks for Runner lifecycle events.
//
// All hooks are optional and invoked synchronously at well-defined points in
// the run sequence, on the rank where the event occurred. Hook errors are
// logged but never fail the run.
//
// Best practices for hook implementation:
//   - Complete quickly; the collective sequence waits for the hook
//   - Respect context cancellation
//   - Make hooks idempotent
type Hooks struct {
	// OnLeaderElected is called on every rank after leader election, with
	// that rank's election outcome for its own host.
	OnLeaderElected func(ctx context.Context, hostname string, leaderRank int, isLeader bool) error

	// OnReport is called on the root rank only, with the final aggregate
	// tally after the reduction completes.
	OnReport func(ctx context.Context, total Tally) error

	// OnError is called when a locally-recovered error occurs (pool
	// fallback, agent launch failure). It is never called for fatal errors,
	// which are returned from Run instead.
	OnError func(ctx context.Context, err error) error
}
