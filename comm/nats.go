package comm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/quadrant/types"
)

const (
	// doneToken marks the root's release message for a round.
	doneToken = "done"

	// defaultRepublishInterval is how often a rank republishes its pending
	// contribution while waiting for the root's release.
	defaultRepublishInterval = 200 * time.Millisecond
)

// NATSComm implements Communicator over NATS core pub/sub.
//
// All ranks of a run share a subject namespace derived from the run ID:
//
//	quadrant.<runID>.<kind>.<seq>.<rank|done>
//
// Each communicator subscribes to the whole namespace once at construction
// and files incoming payloads into an inbox keyed by (kind, seq, sender).
//
// Core NATS delivers only to active subscriptions, so a rank that starts
// late misses anything published before it subscribed. Every collective
// therefore funnels through the root, whose release message is the single
// completion signal for the round:
//
//   - Non-root ranks publish their contribution and republish it at a fixed
//     interval until the root's release arrives. A waiting rank never goes
//     silent, so the root eventually receives every contribution no matter
//     how staggered the process starts are.
//   - The root collects all contributions, then publishes one release for
//     the round, carrying the gathered payloads for allgather and an empty
//     body otherwise. A contribution reaches the root only after its sender
//     subscribed, and the release is published only after every
//     contribution arrived, so the release reaches every rank.
type NATSComm struct {
	nc     *nats.Conn
	prefix string
	rank   int
	size   int

	sub       *nats.Subscription
	inbox     *xsync.Map[string, []byte]
	notify    chan struct{}
	seqs      map[string]uint64
	republish time.Duration
	metrics   types.MetricsCollector
	closed    bool
}

// Compile-time assertion that NATSComm implements Communicator.
var _ Communicator = (*NATSComm)(nil)

// NATSOption configures a NATSComm.
type NATSOption func(*NATSComm)

// WithRepublishInterval overrides the contribution republish cadence.
// Shorter intervals speed up rendezvous in tests.
func WithRepublishInterval(interval time.Duration) NATSOption {
	return func(c *NATSComm) {
		if interval > 0 {
			c.republish = interval
		}
	}
}

// WithCommMetrics attaches a metrics collector recording collective latency.
func WithCommMetrics(m types.MetricsCollector) NATSOption {
	return func(c *NATSComm) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewNATS creates a NATS-backed communicator for one rank of a run.
//
// Parameters:
//   - nc: Connected NATS client (not closed by the communicator)
//   - runID: Identifier shared by all ranks of the run; scopes the subject namespace
//   - rank: This process's rank in [0, size)
//   - size: Fixed number of ranks
//   - opts: Optional settings
//
// Returns:
//   - *NATSComm: Communicator ready for collective calls
//   - error: Validation or subscription error
func NewNATS(nc *nats.Conn, runID string, rank, size int, opts ...NATSOption) (*NATSComm, error) {
	if nc == nil {
		return nil, types.ErrCommunicatorRequired
	}
	if size < 1 {
		return nil, types.ErrInvalidWorldSize
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d with world size %d", types.ErrInvalidRank, rank, size)
	}
	if runID == "" {
		return nil, fmt.Errorf("%w: run ID must not be empty", types.ErrInvalidConfig)
	}

	c := &NATSComm{
		nc:        nc,
		prefix:    "quadrant." + runID,
		rank:      rank,
		size:      size,
		inbox:     xsync.NewMap[string, []byte](),
		notify:    make(chan struct{}, 1),
		seqs:      make(map[string]uint64),
		republish: defaultRepublishInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	sub, err := nc.Subscribe(c.prefix+".>", c.deliver)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to collective namespace: %w", err)
	}
	c.sub = sub

	// Subscribe only queues the SUB on the connection; round-trip to the
	// server so the subscription is registered before any peer's publish
	// can be routed past it.
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to confirm collective subscription: %w", err)
	}

	return c, nil
}

// deliver files an incoming collective message into the inbox.
func (c *NATSComm) deliver(msg *nats.Msg) {
	// Subject: <prefix>.<kind>.<seq>.<sender>; the inbox key is the suffix.
	key := msg.Subject[len(c.prefix)+1:]
	c.inbox.Store(key, msg.Data)

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Rank returns this member's rank.
func (c *NATSComm) Rank() int { return c.rank }

// Size returns the group size.
func (c *NATSComm) Size() int { return c.size }

// Barrier blocks until every rank has reached the same barrier call.
func (c *NATSComm) Barrier(ctx context.Context) error {
	_, err := c.collective(ctx, kindBarrier, []byte{})
	return err
}

// Gather delivers payload to the root rank.
func (c *NATSComm) Gather(ctx context.Context, payload []byte) ([][]byte, error) {
	all, err := c.collective(ctx, kindGather, payload)
	if err != nil {
		return nil, err
	}
	if c.rank != Root {
		return nil, nil
	}

	return all, nil
}

// AllGather delivers payload to every rank.
func (c *NATSComm) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	return c.collective(ctx, kindAllGather, payload)
}

// Reduce combines tallies by field-wise addition on the root.
func (c *NATSComm) Reduce(ctx context.Context, tally types.Tally) (types.Tally, error) {
	payload, err := json.Marshal(tally)
	if err != nil {
		return types.Tally{}, fmt.Errorf("failed to encode tally: %w", err)
	}

	all, err := c.collective(ctx, kindReduce, payload)
	if err != nil {
		return types.Tally{}, err
	}
	if c.rank != Root {
		return types.Tally{}, nil
	}

	return sumTallyPayloads(all)
}

// Close drains the namespace subscription. The NATS connection itself is
// owned by the caller and left open.
func (c *NATSComm) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe collective namespace: %w", err)
	}

	return nil
}

// collective runs one round of the given kind. The root collects and
// releases; every other rank contributes and waits for the release.
func (c *NATSComm) collective(ctx context.Context, kind string, payload []byte) ([][]byte, error) {
	if c.closed {
		return nil, types.ErrCommClosed
	}

	start := time.Now()
	seq := c.seqs[kind]
	c.seqs[kind]++

	// A peer's final republish can land after the round completed; sweep the
	// previous round's keys so they never accumulate.
	if seq > 0 {
		c.sweep(kind, seq-1)
	}

	var (
		result [][]byte
		err    error
	)
	if c.rank == Root {
		result, err = c.collect(ctx, kind, seq, payload)
	} else {
		result, err = c.awaitRelease(ctx, kind, seq, payload)
	}
	if err != nil {
		return nil, err
	}

	c.observe(kind, start)

	return result, nil
}

// collect gathers every peer's contribution on the root, then releases the
// round. The root's own payload never crosses the wire; it is filed into
// the result directly.
func (c *NATSComm) collect(ctx context.Context, kind string, seq uint64, payload []byte) ([][]byte, error) {
	all := make([][]byte, c.size)
	all[Root] = payload

	for {
		if c.tryComplete(kind, seq, all) {
			release, err := releasePayload(kind, all)
			if err != nil {
				return nil, err
			}

			done := fmt.Sprintf("%s.%s.%d.%s", c.prefix, kind, seq, doneToken)
			if err := c.nc.Publish(done, release); err != nil {
				return nil, fmt.Errorf("failed to publish %s release: %w", kind, err)
			}

			return all, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s seq %d on rank %d: %w",
				types.ErrCollectiveTimeout, kind, seq, c.rank, ctx.Err())
		case <-c.notify:
		}
	}
}

// awaitRelease publishes this rank's contribution until the root's release
// for the round arrives. Republishing covers a root that subscribed after
// an earlier publish; it stops only once the release proves the root has
// this rank's contribution.
func (c *NATSComm) awaitRelease(ctx context.Context, kind string, seq uint64, payload []byte) ([][]byte, error) {
	own := fmt.Sprintf("%s.%s.%d.%d", c.prefix, kind, seq, c.rank)
	if err := c.nc.Publish(own, payload); err != nil {
		return nil, fmt.Errorf("failed to publish %s contribution: %w", kind, err)
	}

	doneKey := fmt.Sprintf("%s.%d.%s", kind, seq, doneToken)

	ticker := time.NewTicker(c.republish)
	defer ticker.Stop()

	for {
		if release, ok := c.inbox.Load(doneKey); ok {
			c.sweep(kind, seq)
			return parseRelease(kind, release, c.size)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s seq %d on rank %d: %w",
				types.ErrCollectiveTimeout, kind, seq, c.rank, ctx.Err())
		case <-c.notify:
		case <-ticker.C:
			if err := c.nc.Publish(own, payload); err != nil {
				return nil, fmt.Errorf("failed to republish %s contribution: %w", kind, err)
			}
		}
	}
}

// tryComplete checks whether every peer's contribution for (kind, seq) is
// present, and if so fills them into all and clears the round's inbox keys.
func (c *NATSComm) tryComplete(kind string, seq uint64, all [][]byte) bool {
	for rank := 1; rank < c.size; rank++ {
		key := fmt.Sprintf("%s.%d.%d", kind, seq, rank)
		data, ok := c.inbox.Load(key)
		if !ok {
			return false
		}
		all[rank] = data
	}

	c.sweep(kind, seq)

	return true
}

// releasePayload encodes the release body: allgather carries the full
// gathered set, every other kind releases with an empty body.
func releasePayload(kind string, all [][]byte) ([]byte, error) {
	if kind != kindAllGather {
		return nil, nil
	}

	data, err := json.Marshal(all)
	if err != nil {
		return nil, fmt.Errorf("failed to encode allgather release: %w", err)
	}

	return data, nil
}

// parseRelease decodes the release body on a non-root rank.
func parseRelease(kind string, release []byte, size int) ([][]byte, error) {
	if kind != kindAllGather {
		return nil, nil
	}

	var all [][]byte
	if err := json.Unmarshal(release, &all); err != nil {
		return nil, fmt.Errorf("failed to decode allgather release: %w", err)
	}
	if len(all) != size {
		return nil, fmt.Errorf("allgather release holds %d payloads, want %d", len(all), size)
	}

	return all, nil
}

// sweep removes every inbox entry belonging to (kind, seq), contributions
// and release token alike.
func (c *NATSComm) sweep(kind string, seq uint64) {
	for rank := range c.size {
		c.inbox.Delete(fmt.Sprintf("%s.%d.%d", kind, seq, rank))
	}
	c.inbox.Delete(fmt.Sprintf("%s.%d.%s", kind, seq, doneToken))
}

func (c *NATSComm) observe(kind string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordCollective(kind, time.Since(start).Seconds())
	}
}
