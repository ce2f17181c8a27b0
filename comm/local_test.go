package comm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/quadrant/types"
)

func TestNewLocalGroup_InvalidSize(t *testing.T) {
	_, err := NewLocalGroup(0)
	require.ErrorIs(t, err, types.ErrInvalidWorldSize)

	_, err = NewLocalGroup(-3)
	require.ErrorIs(t, err, types.ErrInvalidWorldSize)
}

func TestLocalGroup_RankAndSize(t *testing.T) {
	comms, err := NewLocalGroup(3)
	require.NoError(t, err)
	require.Len(t, comms, 3)

	for rank, c := range comms {
		require.Equal(t, rank, c.Rank())
		require.Equal(t, 3, c.Size())
	}
}

func TestLocalGroup_Barrier(t *testing.T) {
	const size = 4

	comms, err := NewLocalGroup(size)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, size)
	for rank, c := range comms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[rank] = c.Barrier(ctx)
		}()
	}
	wg.Wait()

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}

func TestLocalGroup_Barrier_MissingRankTimesOut(t *testing.T) {
	comms, err := NewLocalGroup(2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Rank 1 never calls Barrier: rank 0 must surface the mismatch as a
	// timeout error instead of hanging forever.
	err = comms[0].Barrier(ctx)
	require.ErrorIs(t, err, types.ErrCollectiveTimeout)
}

func TestLocalGroup_AllGather(t *testing.T) {
	const size = 3

	comms, err := NewLocalGroup(size)
	require.NoError(t, err)

	ctx := context.Background()
	results := make([][][]byte, size)

	var wg sync.WaitGroup
	for rank, c := range comms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := fmt.Appendf(nil, "host-%d", rank)
			results[rank], _ = c.AllGather(ctx, payload)
		}()
	}
	wg.Wait()

	// Every rank sees every payload, indexed by rank.
	for rank := range size {
		require.Len(t, results[rank], size)
		for sender := range size {
			require.Equal(t, fmt.Sprintf("host-%d", sender), string(results[rank][sender]))
		}
	}
}

func TestLocalGroup_Gather_RootOnly(t *testing.T) {
	const size = 3

	comms, err := NewLocalGroup(size)
	require.NoError(t, err)

	ctx := context.Background()
	results := make([][][]byte, size)

	var wg sync.WaitGroup
	for rank, c := range comms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[rank], _ = c.Gather(ctx, []byte{byte(rank)})
		}()
	}
	wg.Wait()

	require.Len(t, results[Root], size)
	for sender := range size {
		require.Equal(t, []byte{byte(sender)}, results[Root][sender])
	}
	for rank := 1; rank < size; rank++ {
		require.Nil(t, results[rank], "non-root rank %d must receive nil", rank)
	}
}

func TestLocalGroup_Reduce(t *testing.T) {
	const size = 4

	comms, err := NewLocalGroup(size)
	require.NoError(t, err)

	contributions := []types.Tally{
		{Hits: 10, Trials: 25},
		{Hits: 0, Trials: 0}, // zero-trials rank still contributes
		{Hits: 7, Trials: 25},
		{Hits: 25, Trials: 25},
	}

	ctx := context.Background()
	results := make([]types.Tally, size)

	var wg sync.WaitGroup
	for rank, c := range comms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[rank], _ = c.Reduce(ctx, contributions[rank])
		}()
	}
	wg.Wait()

	require.Equal(t, types.Tally{Hits: 42, Trials: 75}, results[Root])
	for rank := 1; rank < size; rank++ {
		require.Equal(t, types.Tally{}, results[rank], "non-root rank %d must receive zero tally", rank)
	}
}

func TestLocalGroup_RepeatedCollectives(t *testing.T) {
	const size, rounds = 3, 5

	comms, err := NewLocalGroup(size)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, size)
	for rank, c := range comms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				if err := c.Barrier(ctx); err != nil {
					errs[rank] = err
					return
				}
				if _, err := c.Reduce(ctx, types.Tally{Hits: 1, Trials: 1}); err != nil {
					errs[rank] = err
					return
				}
			}
		}()
	}
	wg.Wait()

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}

func TestLocalComm_Closed(t *testing.T) {
	comms, err := NewLocalGroup(1)
	require.NoError(t, err)

	require.NoError(t, comms[0].Close())

	err = comms[0].Barrier(context.Background())
	require.ErrorIs(t, err, types.ErrCommClosed)
}

func TestLocalGroup_SingleRank(t *testing.T) {
	comms, err := NewLocalGroup(1)
	require.NoError(t, err)

	ctx := context.Background()
	c := comms[0]

	require.NoError(t, c.Barrier(ctx))

	total, err := c.Reduce(ctx, types.Tally{Hits: 3, Trials: 4})
	require.NoError(t, err)
	require.Equal(t, types.Tally{Hits: 3, Trials: 4}, total)
}
