package comm

import (
	"context"

	"github.com/arloliu/quadrant/types"
)

// Root is the rank that receives gather and reduce results.
const Root = 0

// Collective kind names, used for subject construction and metrics labels.
const (
	kindBarrier   = "barrier"
	kindGather    = "gather"
	kindAllGather = "allgather"
	kindReduce    = "reduce"
)

// Communicator is the injected capability for distributed-rank coordination.
//
// A Communicator represents one rank's membership in a fixed-size group.
// There is no shared memory between ranks; all coordination flows through
// the collective calls below.
//
// Collective-sequence contract: every rank in the group must invoke the same
// collective methods in the same order the same number of times. Zero-work
// ranks participate with empty or zero contributions; they must never skip a
// call. Implementations are not required to detect a mismatch, only to
// respect context deadlines so a mismatch surfaces as an error rather than
// an unbounded hang.
//
// A Communicator is owned by a single goroutine; collective methods must not
// be invoked concurrently on one instance.
type Communicator interface {
	// Rank returns this member's rank in [0, Size()).
	Rank() int

	// Size returns the fixed number of ranks in the group.
	Size() int

	// Barrier blocks until every rank has reached the same barrier call.
	Barrier(ctx context.Context) error

	// Gather delivers payload to the root rank. On the root, the returned
	// slice holds every rank's payload indexed by rank; on other ranks the
	// result is nil. All ranks block until the root has collected every
	// contribution.
	Gather(ctx context.Context, payload []byte) ([][]byte, error)

	// AllGather delivers payload to every rank. The returned slice holds
	// every rank's payload indexed by rank, identical on all ranks.
	AllGather(ctx context.Context, payload []byte) ([][]byte, error)

	// Reduce combines tallies by field-wise addition. On the root the result
	// is the sum over all ranks; on other ranks it is the zero Tally.
	Reduce(ctx context.Context, tally types.Tally) (types.Tally, error)

	// Close releases transport resources. Collective calls after Close
	// return types.ErrCommClosed.
	Close() error
}
