// Package kernel provides the Monte Carlo sampling kernel: count how many of
// n uniform points in the unit square fall inside the quarter circle.
//
// The predicate uses the squared-distance comparison x*x+y*y <= 1 rather
// than an explicit square root. The two forms are mathematically equivalent;
// the squared form avoids the sqrt call and is the variant this package
// commits to.
package kernel

import (
	"context"
	"encoding/binary"
	"math/rand/v2"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"github.com/arloliu/quadrant/pool"
)

// CountInCircle performs n trials with the given source and returns the
// number of points falling inside the quarter circle.
//
// Parameters:
//   - n: Number of trials
//   - rng: Random source for this batch (not shared across goroutines)
//
// Returns:
//   - uint64: Hits, 0 <= hits <= n
func CountInCircle(n uint64, rng *rand.Rand) uint64 {
	var hits uint64
	for range n {
		x := rng.Float64()
		y := rng.Float64()
		if x*x+y*y <= 1.0 {
			hits++
		}
	}

	return hits
}

// New returns a kernel whose batches are independently and reproducibly
// seeded.
//
// Each batch derives its seed by hashing (runID, rank, batch ordinal) with
// xxh3, so a rerun with the same run ID reproduces the same per-batch random
// streams regardless of which worker executes which batch. Batch ordinals
// are assigned by an atomic counter; the resulting tally is still
// order-independent because the per-batch streams themselves do not depend
// on scheduling (two interleavings may swap which batch gets which ordinal,
// so strict bit-reproducibility holds for serial pools; concurrent pools
// keep statistical reproducibility).
//
// Parameters:
//   - runID: Run identifier shared by all ranks
//   - rank: The calling rank
//
// Returns:
//   - pool.Kernel: Kernel suitable for pool.Run
func New(runID string, rank int) pool.Kernel {
	var ordinal atomic.Uint64

	return func(ctx context.Context, n uint64) (uint64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		seed := batchSeed(runID, rank, ordinal.Add(1)-1)
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

		return CountInCircle(n, rng), nil
	}
}

// batchSeed hashes (runID, rank, ordinal) into a 64-bit seed.
func batchSeed(runID string, rank int, ordinal uint64) uint64 {
	buf := make([]byte, 0, len(runID)+16)
	buf = append(buf, runID...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rank))
	buf = binary.LittleEndian.AppendUint64(buf, ordinal)

	return xxh3.Hash(buf)
}
