package types

// AgentState represents the telemetry-agent supervisor lifecycle state.
//
// States follow a defined progression on an elected leader:
//
//	StateNotStarted → StateStarting → StateRunning → StateStoppingGraceful → StateStopped
//
// When the agent ignores the graceful signal past the timeout:
//
//	StateStoppingGraceful → StateStoppingForced → StateStopped
//
// Non-leader ranks never leave StateNotStarted. A failed launch returns the
// supervisor to StateNotStarted as well, since no handle was recorded.
type AgentState int

const (
	// StateNotStarted is the initial state; no agent process exists.
	StateNotStarted AgentState = iota

	// StateStarting indicates the agent invocation is being constructed and launched.
	StateStarting

	// StateRunning indicates the agent process is alive and the handle is held.
	StateRunning

	// StateStoppingGraceful indicates an interrupt was sent to the agent's
	// process group and the supervisor is waiting for voluntary exit.
	StateStoppingGraceful

	// StateStoppingForced indicates the graceful timeout elapsed and an
	// unconditional kill was sent to the process group.
	StateStoppingForced

	// StateStopped indicates the handle is cleared; further stops are no-ops.
	StateStopped
)

// String returns the string representation of the state.
func (s AgentState) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStoppingGraceful:
		return "StoppingGraceful"
	case StateStoppingForced:
		return "StoppingForced"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
