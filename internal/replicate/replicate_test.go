package replicate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRingRejectsNonPowerOfTwo(t *testing.T) {
	t.Parallel()
	_, err := NewRing(0)
	require.Error(t, err)
	_, err = NewRing(3)
	require.Error(t, err)
	_, err = NewRing(-4)
	require.Error(t, err)
	_, err = NewRing(4)
	require.NoError(t, err)
}

func TestPushPopRoundTrip(t *testing.T) {
	t.Parallel()
	r, err := NewRing(4)
	require.NoError(t, err)
	require.True(t, r.Push(Stat{Index: 1, TMRCA: 2.5}))
	s, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, 1, s.Index)
	require.Equal(t, 2.5, s.TMRCA)
}

func TestPopOnEmptyRingFails(t *testing.T) {
	t.Parallel()
	r, _ := NewRing(4)
	_, ok := r.Pop()
	require.False(t, ok)
}

func TestPushOnFullRingFails(t *testing.T) {
	t.Parallel()
	r, _ := NewRing(2)
	require.True(t, r.Push(Stat{Index: 0}))
	require.True(t, r.Push(Stat{Index: 1}))
	require.False(t, r.Push(Stat{Index: 2}), "ring capacity 2 is now full")
	_, ok := r.Pop()
	require.True(t, ok)
	require.True(t, r.Push(Stat{Index: 2}), "freeing one slot should allow exactly one more push")
}

func TestRingPreservesFIFOOrder(t *testing.T) {
	t.Parallel()
	r, _ := NewRing(8)
	for i := 0; i < 5; i++ {
		require.True(t, r.Push(Stat{Index: i}))
	}
	for i := 0; i < 5; i++ {
		s, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, i, s.Index)
	}
}

func TestRingLenTracksOccupancy(t *testing.T) {
	t.Parallel()
	r, _ := NewRing(4)
	require.Equal(t, 0, r.Len())
	r.Push(Stat{Index: 0})
	r.Push(Stat{Index: 1})
	require.Equal(t, 2, r.Len())
	r.Pop()
	require.Equal(t, 1, r.Len())
}

func TestRingWrapsAroundCorrectly(t *testing.T) {
	t.Parallel()
	r, _ := NewRing(2)
	for round := 0; round < 10; round++ {
		require.True(t, r.Push(Stat{Index: round}))
		s, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, round, s.Index)
	}
}

func TestCollectReturnsStatsInReplicateOrder(t *testing.T) {
	t.Parallel()
	const n = 50
	out, err := Collect(n, 4, func(i int) (Stat, error) {
		return Stat{Index: i, TMRCA: float64(i) * 2, NumBreakpoints: i, NumTrees: i + 1}, nil
	})
	require.NoError(t, err)
	require.Len(t, out, n)
	for i, s := range out {
		require.Equal(t, i, s.Index)
		require.Equal(t, float64(i)*2, s.TMRCA)
	}
}

func TestCollectPropagatesWorkerError(t *testing.T) {
	t.Parallel()
	out, err := Collect(20, 4, func(i int) (Stat, error) {
		if i == 13 {
			return Stat{}, fmt.Errorf("boom at %d", i)
		}
		return Stat{Index: i}, nil
	})
	require.Error(t, err)
	require.Nil(t, out)
}

func TestCollectZeroReplicatesReturnsEmpty(t *testing.T) {
	t.Parallel()
	out, err := Collect(0, 4, func(i int) (Stat, error) {
		t.Fatal("run should never be called for zero replicates")
		return Stat{}, nil
	})
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestCollectClampsWorkerCountToReplicateCount(t *testing.T) {
	t.Parallel()
	out, err := Collect(3, 100, func(i int) (Stat, error) {
		return Stat{Index: i}, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestCollectSingleWorker(t *testing.T) {
	t.Parallel()
	out, err := Collect(10, 1, func(i int) (Stat, error) {
		return Stat{Index: i}, nil
	})
	require.NoError(t, err)
	for i, s := range out {
		require.Equal(t, i, s.Index)
	}
}
