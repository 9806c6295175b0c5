package fenwick

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAndPrefixSum(t *testing.T) {
	t.Parallel()
	tr := New(5)
	require.NoError(t, tr.Set(1, 1))
	require.NoError(t, tr.Set(2, 2))
	require.NoError(t, tr.Set(3, 3))
	require.Equal(t, 1.0, tr.PrefixSum(1))
	require.Equal(t, 3.0, tr.PrefixSum(2))
	require.Equal(t, 6.0, tr.PrefixSum(3))
	require.Equal(t, 6.0, tr.Total())
}

func TestSetReplacesNotAccumulates(t *testing.T) {
	t.Parallel()
	tr := New(3)
	require.NoError(t, tr.Set(2, 5))
	require.NoError(t, tr.Set(2, 1))
	require.Equal(t, 1.0, tr.Weight(2))
	require.Equal(t, 1.0, tr.Total())
}

func TestIncrement(t *testing.T) {
	t.Parallel()
	tr := New(3)
	require.NoError(t, tr.Set(1, 2))
	require.NoError(t, tr.Increment(1, 3))
	require.Equal(t, 5.0, tr.Weight(1))
}

func TestNegativeWeightRejected(t *testing.T) {
	t.Parallel()
	tr := New(3)
	require.Error(t, tr.Set(1, -1))
}

func TestGrowsPastInitialN(t *testing.T) {
	t.Parallel()
	tr := New(2)
	require.NoError(t, tr.Set(10, 4))
	require.Equal(t, 4.0, tr.Weight(10))
	require.Equal(t, 4.0, tr.Total())
	require.GreaterOrEqual(t, tr.N(), 10)
}

func TestFindMatchesPrefixSumInverse(t *testing.T) {
	t.Parallel()
	tr := New(5)
	weights := []float64{0, 2, 0, 5, 1}
	for i, w := range weights {
		require.NoError(t, tr.Set(i+1, w))
	}
	// Find(PrefixSum(i)) should return i for every index with positive weight,
	// since the cumulative sum strictly increases exactly at those indices.
	for i := 1; i <= 5; i++ {
		if tr.Weight(i) == 0 {
			continue
		}
		require.Equal(t, i, tr.Find(tr.PrefixSum(i)))
	}
}

func TestFindTieBreaksToSmallestIndex(t *testing.T) {
	t.Parallel()
	tr := New(5)
	require.NoError(t, tr.Set(3, 2))
	// indices 1,2 carry zero weight; any x in (0,2] must resolve to 3,
	// the first index whose prefix sum reaches x.
	require.Equal(t, 3, tr.Find(0.5))
	require.Equal(t, 3, tr.Find(2))
}

func TestFindOfTotalReturnsLastPositiveIndex(t *testing.T) {
	t.Parallel()
	tr := New(4)
	require.NoError(t, tr.Set(1, 1))
	require.NoError(t, tr.Set(4, 1))
	require.Equal(t, 4, tr.Find(tr.Total()))
}

// TestStressAgainstLinearScan cross-checks Find and PrefixSum against an
// O(n) reference implementation across a long deterministic sequence of
// random point updates, in the spirit of the teacher repository's
// reference-heap stress comparisons.
func TestStressAgainstLinearScan(t *testing.T) {
	t.Parallel()
	const n = 64
	rng := rand.New(rand.NewSource(987654321))
	tr := New(n)
	weights := make([]float64, n+1)

	for iter := 0; iter < 20_000; iter++ {
		i := rng.Intn(n) + 1
		w := rng.Float64() * 100
		require.NoError(t, tr.Set(i, w))
		weights[i] = w

		total := 0.0
		for _, v := range weights {
			total += v
		}
		require.InDelta(t, total, tr.Total(), 1e-6)

		if total <= 0 {
			continue
		}
		x := rng.Float64() * total
		got := tr.Find(x)

		cum := 0.0
		want := 0
		for idx := 1; idx <= n; idx++ {
			cum += weights[idx]
			if cum >= x {
				want = idx
				break
			}
		}
		require.Equal(t, want, got, "Find(%v) with weights %v", x, weights)
	}
}

func TestFindOnEmptyTreeReturnsZero(t *testing.T) {
	t.Parallel()
	tr := New(4)
	require.Equal(t, 0, tr.Find(0))
}

func TestWeightsSortedInsertionOrderIndependence(t *testing.T) {
	t.Parallel()
	idxs := []int{5, 1, 3, 2, 4}
	sort.Ints(idxs)
	tr1 := New(5)
	tr2 := New(5)
	for _, i := range idxs {
		require.NoError(t, tr1.Set(i, float64(i)))
	}
	for i := len(idxs) - 1; i >= 0; i-- {
		require.NoError(t, tr2.Set(idxs[i], float64(idxs[i])))
	}
	require.Equal(t, tr1.Total(), tr2.Total())
	for i := 1; i <= 5; i++ {
		require.Equal(t, tr1.PrefixSum(i), tr2.PrefixSum(i))
	}
}
