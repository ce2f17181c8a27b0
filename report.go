package quadrant

import (
	"fmt"
	"math"
	"time"
)

// Report is the final run summary produced on the root rank.
type Report struct {
	// TotalTrials is the number of trials aggregated across all ranks.
	TotalTrials uint64

	// TotalHits is the number of in-circle hits across all ranks.
	TotalHits uint64

	// Estimate is 4 * TotalHits / TotalTrials, or 0 when TotalTrials is 0.
	Estimate float64

	// AbsError is |Estimate - pi|, or 0 when TotalTrials is 0.
	AbsError float64

	// WorldSize is the number of ranks that contributed.
	WorldSize int

	// Duration is the root rank's wall time for the full run sequence.
	Duration time.Duration
}

// newReport builds a Report from the reduced tally.
func newReport(total Tally, worldSize int, duration time.Duration) Report {
	rep := Report{
		TotalTrials: total.Trials,
		TotalHits:   total.Hits,
		WorldSize:   worldSize,
		Duration:    duration,
	}
	if total.Trials > 0 {
		rep.Estimate = total.Estimate()
		rep.AbsError = math.Abs(rep.Estimate - math.Pi)
	}

	return rep
}

// String formats the report for human consumption.
func (r Report) String() string {
	return fmt.Sprintf("pi=%.8f err=%.2e trials=%d hits=%d ranks=%d elapsed=%s",
		r.Estimate, r.AbsError, r.TotalTrials, r.TotalHits, r.WorldSize, r.Duration.Round(time.Millisecond))
}
