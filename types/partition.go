package types

// Partition is the slice of the total workload assigned to one rank.
type Partition struct {
	// Rank identifies the owning rank, in [0, worldSize).
	Rank int `json:"rank"`

	// Trials is the number of trials assigned to the rank.
	Trials uint64 `json:"trials"`
}

// Plan splits totalTrials across worldSize ranks.
//
// The split is near-even and deterministic: base = totalTrials/worldSize,
// remainder = totalTrials%worldSize, and ranks with Rank < remainder receive
// base+1 trials. The sum of all partition trial counts equals totalTrials
// exactly, for any worldSize >= 1 and any totalTrials >= 0, and trial counts
// across ranks differ by at most one.
//
// Plan is a pure function of its inputs; re-running with the same inputs
// always assigns the same counts to the same ranks.
//
// Parameters:
//   - totalTrials: Total workload to distribute
//   - worldSize: Number of ranks (must be >= 1; Plan returns nil otherwise)
//
// Returns:
//   - []Partition: One partition per rank, indexed by rank
func Plan(totalTrials uint64, worldSize int) []Partition {
	if worldSize < 1 {
		return nil
	}

	base := totalTrials / uint64(worldSize)
	remainder := totalTrials % uint64(worldSize)

	partitions := make([]Partition, worldSize)
	for rank := range worldSize {
		trials := base
		if uint64(rank) < remainder {
			trials++
		}
		partitions[rank] = Partition{Rank: rank, Trials: trials}
	}

	return partitions
}

// PlanFor returns the partition for a single rank without materializing the
// full plan. Equivalent to Plan(totalTrials, worldSize)[rank].
//
// Parameters:
//   - totalTrials: Total workload to distribute
//   - worldSize: Number of ranks (must be >= 1)
//   - rank: The rank to compute, in [0, worldSize)
//
// Returns:
//   - Partition: The rank's partition (zero value for out-of-range inputs)
func PlanFor(totalTrials uint64, worldSize, rank int) Partition {
	if worldSize < 1 || rank < 0 || rank >= worldSize {
		return Partition{}
	}

	trials := totalTrials / uint64(worldSize)
	if uint64(rank) < totalTrials%uint64(worldSize) {
		trials++
	}

	return Partition{Rank: rank, Trials: trials}
}
