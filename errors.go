package quadrant

import "github.com/arloliu/quadrant/types"

// Re-exported sentinel errors for API convenience; match with errors.Is.
var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrCommunicatorRequired indicates New was called with a nil
	// communicator.
	ErrCommunicatorRequired = types.ErrCommunicatorRequired

	// ErrCollectiveTimeout indicates a collective call exceeded its bound.
	ErrCollectiveTimeout = types.ErrCollectiveTimeout

	// ErrCommClosed indicates a collective call on a closed communicator.
	ErrCommClosed = types.ErrCommClosed

	// ErrAgentLaunch indicates the telemetry agent failed to start.
	ErrAgentLaunch = types.ErrAgentLaunch
)
