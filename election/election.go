// Package election determines, for each physical host, exactly one leader
// rank responsible for host-level auxiliary duties.
//
// Every rank publishes its (rank, hostname) pair in a single allgather; the
// leader for a host is the minimum rank among the ranks sharing that
// hostname. The decision is a local, deterministic computation over the
// gathered set: no second round of messages, no race, and the minimum is
// unique so exactly one leader exists per distinct hostname.
package election

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arloliu/quadrant/comm"
)

// Member is one rank's entry in the all-to-all exchange.
type Member struct {
	// Rank is the member's rank.
	Rank int `json:"rank"`

	// Hostname is the physical host the rank runs on.
	Hostname string `json:"hostname"`
}

// Result is one rank's view of the election outcome for its own host.
type Result struct {
	// Leader reports whether the calling rank is its host's leader.
	Leader bool

	// LeaderRank is the rank elected leader for the calling rank's host.
	LeaderRank int

	// Hostname is the calling rank's hostname.
	Hostname string

	// Members is the full gathered set, indexed by rank. Shared by every
	// rank, useful for logging and diagnostics.
	Members []Member
}

// Elect runs the leader election for the calling rank.
//
// Performs exactly one allgather on the communicator; like every collective,
// all ranks must call Elect in matching sequence.
//
// Parameters:
//   - ctx: Context bounding the collective exchange
//   - c: The rank's communicator
//   - hostname: The calling rank's hostname
//
// Returns:
//   - Result: The election outcome for the calling rank's host
//   - error: Collective or decoding error
func Elect(ctx context.Context, c comm.Communicator, hostname string) (Result, error) {
	self := Member{Rank: c.Rank(), Hostname: hostname}

	payload, err := json.Marshal(self)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode member: %w", err)
	}

	gathered, err := c.AllGather(ctx, payload)
	if err != nil {
		return Result{}, fmt.Errorf("member exchange failed: %w", err)
	}

	members := make([]Member, len(gathered))
	for rank, raw := range gathered {
		if err := json.Unmarshal(raw, &members[rank]); err != nil {
			return Result{}, fmt.Errorf("failed to decode member from rank %d: %w", rank, err)
		}
	}

	leaderRank := LeaderOf(members, hostname)

	return Result{
		Leader:     leaderRank == c.Rank(),
		LeaderRank: leaderRank,
		Hostname:   hostname,
		Members:    members,
	}, nil
}

// LeaderOf returns the minimum rank among members sharing the hostname, or
// -1 when no member matches. Pure function over the gathered set.
//
// Parameters:
//   - members: The full set of (rank, hostname) entries
//   - hostname: The host to resolve
//
// Returns:
//   - int: Leader rank for the host, -1 when the host is absent
func LeaderOf(members []Member, hostname string) int {
	leader := -1
	for _, m := range members {
		if m.Hostname != hostname {
			continue
		}
		if leader == -1 || m.Rank < leader {
			leader = m.Rank
		}
	}

	return leader
}
