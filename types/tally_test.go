package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTally_Add(t *testing.T) {
	a := Tally{Hits: 3, Trials: 10}
	b := Tally{Hits: 7, Trials: 20}

	sum := a.Add(b)
	require.Equal(t, Tally{Hits: 10, Trials: 30}, sum)

	// Commutative
	require.Equal(t, sum, b.Add(a))
}

func TestTally_Add_Associative(t *testing.T) {
	a := Tally{Hits: 1, Trials: 2}
	b := Tally{Hits: 3, Trials: 4}
	c := Tally{Hits: 5, Trials: 8}

	require.Equal(t, a.Add(b).Add(c), a.Add(b.Add(c)))
}

func TestTally_Estimate(t *testing.T) {
	tests := []struct {
		name  string
		tally Tally
		want  float64
	}{
		{name: "zero trials yields zero, not a division error", tally: Tally{}, want: 0},
		{name: "all hits", tally: Tally{Hits: 10, Trials: 10}, want: 4},
		{name: "no hits", tally: Tally{Hits: 0, Trials: 10}, want: 0},
		{name: "three quarters", tally: Tally{Hits: 3, Trials: 4}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, tt.tally.Estimate(), 1e-12)
		})
	}
}

func TestSum_OrderIndependent(t *testing.T) {
	tallies := []Tally{
		{Hits: 1, Trials: 5},
		{Hits: 0, Trials: 0},
		{Hits: 9, Trials: 12},
		{Hits: 2, Trials: 2},
	}

	forward := Sum(tallies...)
	reversed := Sum(tallies[3], tallies[2], tallies[1], tallies[0])

	require.Equal(t, Tally{Hits: 12, Trials: 19}, forward)
	require.Equal(t, forward, reversed)
}
