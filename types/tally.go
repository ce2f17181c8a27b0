package types

// Tally is a (hits, trials) pair, the unit of reducible result.
//
// A Tally is produced by one execution unit for one batch and combined by
// field-wise addition. Addition is associative and commutative, so partial
// tallies may be merged in any order. Invariant: Hits <= Trials.
//
// Tallies are immutable by convention once produced; Add returns a new value.
type Tally struct {
	// Hits is the number of trials that satisfied the sampling predicate.
	Hits uint64 `json:"hits"`

	// Trials is the number of trials performed.
	Trials uint64 `json:"trials"`
}

// Add returns the field-wise sum of t and other.
//
// Returns:
//   - Tally: Combined tally
func (t Tally) Add(other Tally) Tally {
	return Tally{
		Hits:   t.Hits + other.Hits,
		Trials: t.Trials + other.Trials,
	}
}

// Estimate returns the Monte Carlo estimate 4*Hits/Trials.
//
// A zero-trial tally yields 0 rather than a division error, so callers may
// pass through empty partitions without guarding.
//
// Returns:
//   - float64: Estimated value (0 when Trials == 0)
func (t Tally) Estimate() float64 {
	if t.Trials == 0 {
		return 0
	}

	return 4 * float64(t.Hits) / float64(t.Trials)
}

// Sum combines a sequence of tallies into one.
//
// Parameters:
//   - tallies: Partial tallies in any order
//
// Returns:
//   - Tally: Field-wise sum of all inputs
func Sum(tallies ...Tally) Tally {
	var total Tally
	for _, t := range tallies {
		total = total.Add(t)
	}

	return total
}
