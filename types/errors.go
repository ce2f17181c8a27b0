package types

import "errors"

// Sentinel errors for the quadrant library.
//
// These errors provide type-safe error checking using errors.Is() and
// errors.As(). Components should use these sentinels for known error
// conditions and wrap external errors with context using
// fmt.Errorf("...: %w", err).
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCommunicatorRequired is returned when the communicator is nil.
	ErrCommunicatorRequired = errors.New("communicator is required")

	// ErrKernelRequired is returned when the sampling kernel is nil.
	ErrKernelRequired = errors.New("sampling kernel is required")

	// ErrInvalidRank is returned when a rank is outside [0, worldSize).
	ErrInvalidRank = errors.New("invalid rank")

	// ErrInvalidWorldSize is returned when the world size is < 1.
	ErrInvalidWorldSize = errors.New("world size must be >= 1")

	// ErrCollectiveTimeout is returned when a collective operation does not
	// complete before its context deadline. This almost always indicates a
	// collective-sequence mismatch: some rank skipped a barrier, gather, or
	// reduce that its peers are blocked on.
	ErrCollectiveTimeout = errors.New("collective operation timed out")

	// ErrCommClosed is returned when a collective is invoked on a closed
	// communicator.
	ErrCommClosed = errors.New("communicator is closed")

	// ErrAgentAlreadyStarted is returned when Start is called on a supervisor
	// that already launched its agent.
	ErrAgentAlreadyStarted = errors.New("agent already started")

	// ErrAgentLaunch is returned when the telemetry agent subprocess cannot
	// be started. The run proceeds without telemetry; this error is logged,
	// never propagated as a run failure.
	ErrAgentLaunch = errors.New("failed to launch telemetry agent")
)
