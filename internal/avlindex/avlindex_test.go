package avlindex

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertSizeTracksCount(t *testing.T) {
	t.Parallel()
	idx := New[int]()
	require.Equal(t, 0, idx.Size())
	for i := 0; i < 10; i++ {
		_, err := idx.Insert(float64(i), i)
		require.NoError(t, err)
	}
	require.Equal(t, 10, idx.Size())
}

func TestSelectByRankMatchesSortedOrder(t *testing.T) {
	t.Parallel()
	idx := New[int]()
	keys := []float64{5, 1, 9, 3, 7, 2, 8, 0, 6, 4}
	for _, k := range keys {
		_, err := idx.Insert(k, int(k))
		require.NoError(t, err)
	}
	sorted := append([]float64(nil), keys...)
	sort.Float64s(sorted)
	for rank, want := range sorted {
		ref := idx.SelectByRank(rank)
		require.Equal(t, want, idx.Key(ref))
	}
}

func TestDeleteRemovesExactlyOneNode(t *testing.T) {
	t.Parallel()
	idx := New[int]()
	var refs []Ref
	for i := 0; i < 20; i++ {
		ref, err := idx.Insert(float64(i), i)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	idx.Delete(refs[10])
	require.Equal(t, 19, idx.Size())

	var remaining []int
	for rank := 0; rank < idx.Size(); rank++ {
		remaining = append(remaining, idx.Value(idx.SelectByRank(rank)))
	}
	for _, v := range remaining {
		require.NotEqual(t, 10, v)
	}
	require.Len(t, remaining, 19)
}

func TestSetValuePreservesStructure(t *testing.T) {
	t.Parallel()
	idx := New[int]()
	ref, err := idx.Insert(1, 100)
	require.NoError(t, err)
	idx.SetValue(ref, 200)
	require.Equal(t, 200, idx.Value(ref))
	require.Equal(t, 1.0, idx.Key(ref))
}

func TestDuplicateKeysAllowed(t *testing.T) {
	t.Parallel()
	idx := New[int]()
	_, err := idx.Insert(1, 1)
	require.NoError(t, err)
	_, err = idx.Insert(1, 2)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Size())
}

// TestStressInsertDeleteAgainstSortedReference exercises insert/delete at
// volume against a plain sorted-slice reference model, checking rank
// selection and tree size after every mutation, in the teacher
// repository's deterministic-seed, reference-model stress-test style.
func TestStressInsertDeleteAgainstSortedReference(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(424242))
	idx := New[int]()

	type entry struct {
		key float64
		val int
		ref Ref
	}
	var live []entry

	for i := 0; i < 50_000; i++ {
		if len(live) == 0 || rng.Intn(3) != 0 {
			key := rng.Float64() * 1000
			ref, err := idx.Insert(key, i)
			require.NoError(t, err)
			live = append(live, entry{key: key, val: i, ref: ref})
		} else {
			pos := rng.Intn(len(live))
			idx.Delete(live[pos].ref)
			live[pos] = live[len(live)-1]
			live = live[:len(live)-1]
		}
		require.Equal(t, len(live), idx.Size())

		if i%1000 == 0 && len(live) > 0 {
			sorted := append([]entry(nil), live...)
			sort.Slice(sorted, func(a, b int) bool { return sorted[a].key < sorted[b].key })
			for rank := range sorted {
				got := idx.Key(idx.SelectByRank(rank))
				require.Equal(t, sorted[rank].key, got, "rank %d out of order", rank)
			}
			// Every still-live entry's own Ref must still resolve to its
			// own (key, val): a Delete elsewhere in the tree must never
			// move another live entry's content onto a different Ref.
			for _, e := range live {
				require.Equal(t, e.key, idx.Key(e.ref))
				require.Equal(t, e.val, idx.Value(e.ref))
			}
		}
	}
}

// TestDeleteNeverRelocatesAnotherLiveNodesContent is a regression test:
// when the deleted node's in-order successor is some other still-live
// entry, that entry's externally-held Ref must keep pointing at its own
// (key, val), not a freed node.
func TestDeleteNeverRelocatesAnotherLiveNodesContent(t *testing.T) {
	t.Parallel()
	idx := New[string]()
	refs := make(map[int]Ref)
	for _, k := range []float64{10, 5, 15, 3, 7, 12, 20} {
		ref, err := idx.Insert(k, "v")
		require.NoError(t, err)
		refs[int(k)] = ref
	}
	// 12 is the in-order successor of 10 (10's right subtree is {15,12,20}).
	succRef := refs[12]
	idx.SetValue(succRef, "twelve")

	idx.Delete(refs[10])

	require.Equal(t, 12.0, idx.Key(succRef), "12's own Ref must still report its own key")
	require.Equal(t, "twelve", idx.Value(succRef), "12's own Ref must still report its own value")
	require.Equal(t, 6, idx.Size())
}

func TestSelectByRankOutOfRangePanics(t *testing.T) {
	t.Parallel()
	idx := New[int]()
	_, _ = idx.Insert(1, 1)
	require.Panics(t, func() { idx.SelectByRank(5) })
}
