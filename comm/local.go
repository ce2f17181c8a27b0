package comm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arloliu/quadrant/types"
)

// localGroup is the shared state behind a set of in-process communicators.
type localGroup struct {
	size int

	mu     sync.Mutex
	rounds map[string]*localRound
}

// localRound is one in-flight collective, identified by (kind, seq).
type localRound struct {
	payloads [][]byte
	arrived  int
	done     chan struct{}
}

// LocalComm is one rank's membership in an in-process group.
//
// Each rank runs as a goroutine; collective calls rendezvous through shared
// memory. LocalComm doubles as the deterministic fake for coordinator tests
// and as a real transport for single-process runs.
type LocalComm struct {
	group  *localGroup
	rank   int
	seqs   map[string]uint64
	closed bool
}

// Compile-time assertion that LocalComm implements Communicator.
var _ Communicator = (*LocalComm)(nil)

// NewLocalGroup creates an in-process communicator group of the given size.
//
// The returned slice holds one communicator per rank, indexed by rank. Each
// must be driven by its own goroutine.
//
// Parameters:
//   - size: Number of ranks (must be >= 1)
//
// Returns:
//   - []*LocalComm: One communicator per rank
//   - error: types.ErrInvalidWorldSize when size < 1
//
// Example:
//
//	comms, _ := comm.NewLocalGroup(4)
//	for rank, c := range comms {
//	    go runRank(rank, c)
//	}
func NewLocalGroup(size int) ([]*LocalComm, error) {
	if size < 1 {
		return nil, types.ErrInvalidWorldSize
	}

	group := &localGroup{
		size:   size,
		rounds: make(map[string]*localRound),
	}

	comms := make([]*LocalComm, size)
	for rank := range size {
		comms[rank] = &LocalComm{
			group: group,
			rank:  rank,
			seqs:  make(map[string]uint64),
		}
	}

	return comms, nil
}

// Rank returns this member's rank.
func (c *LocalComm) Rank() int { return c.rank }

// Size returns the group size.
func (c *LocalComm) Size() int { return c.group.size }

// Barrier blocks until every rank has reached the same barrier call.
func (c *LocalComm) Barrier(ctx context.Context) error {
	_, err := c.exchange(ctx, kindBarrier, nil)
	return err
}

// Gather delivers payload to the root rank.
func (c *LocalComm) Gather(ctx context.Context, payload []byte) ([][]byte, error) {
	all, err := c.exchange(ctx, kindGather, payload)
	if err != nil {
		return nil, err
	}
	if c.rank != Root {
		return nil, nil
	}

	return all, nil
}

// AllGather delivers payload to every rank.
func (c *LocalComm) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	return c.exchange(ctx, kindAllGather, payload)
}

// Reduce combines tallies by field-wise addition on the root.
func (c *LocalComm) Reduce(ctx context.Context, tally types.Tally) (types.Tally, error) {
	payload, err := json.Marshal(tally)
	if err != nil {
		return types.Tally{}, fmt.Errorf("failed to encode tally: %w", err)
	}

	all, err := c.exchange(ctx, kindReduce, payload)
	if err != nil {
		return types.Tally{}, err
	}
	if c.rank != Root {
		return types.Tally{}, nil
	}

	return sumTallyPayloads(all)
}

// Close marks the communicator closed. The shared group state is unaffected,
// so other ranks can still complete collectives already in flight.
func (c *LocalComm) Close() error {
	c.closed = true
	return nil
}

// exchange is the single rendezvous primitive: every rank contributes a
// payload for (kind, own next seq) and blocks until all contributions for
// that round are present.
func (c *LocalComm) exchange(ctx context.Context, kind string, payload []byte) ([][]byte, error) {
	if c.closed {
		return nil, types.ErrCommClosed
	}

	seq := c.seqs[kind]
	c.seqs[kind]++
	key := fmt.Sprintf("%s/%d", kind, seq)

	round := c.group.join(key, c.rank, payload)

	select {
	case <-round.done:
		return round.payloads, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s seq %d on rank %d: %w",
			types.ErrCollectiveTimeout, kind, seq, c.rank, ctx.Err())
	}
}

// join records one rank's contribution to a round, creating the round on
// first arrival and completing it on the last. The completed round is
// removed from the map; waiters keep their own pointer.
func (g *localGroup) join(key string, rank int, payload []byte) *localRound {
	g.mu.Lock()
	defer g.mu.Unlock()

	round, ok := g.rounds[key]
	if !ok {
		round = &localRound{
			payloads: make([][]byte, g.size),
			done:     make(chan struct{}),
		}
		g.rounds[key] = round
	}

	round.payloads[rank] = payload
	round.arrived++
	if round.arrived == g.size {
		close(round.done)
		delete(g.rounds, key)
	}

	return round
}

// sumTallyPayloads decodes and sums the gathered tally payloads.
func sumTallyPayloads(payloads [][]byte) (types.Tally, error) {
	var total types.Tally
	for rank, raw := range payloads {
		var t types.Tally
		if err := json.Unmarshal(raw, &t); err != nil {
			return types.Tally{}, fmt.Errorf("failed to decode tally from rank %d: %w", rank, err)
		}
		total = total.Add(t)
	}

	return total, nil
}
