package objectheap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type block struct {
	tag  int
	link Ref
}

func next(b *block) *Ref { return &b.link }

func TestAllocZeroesBlock(t *testing.T) {
	t.Parallel()
	h := New(next, 0)
	ref, err := h.Alloc()
	require.NoError(t, err)
	require.Equal(t, 0, h.Get(ref).tag)
	h.Get(ref).tag = 42
	require.Equal(t, 1, h.Len())
}

func TestFreeRecyclesSlot(t *testing.T) {
	t.Parallel()
	h := New(next, 0)
	a, err := h.Alloc()
	require.NoError(t, err)
	h.Get(a).tag = 7
	h.Free(a)
	require.Equal(t, 0, h.Len())

	b, err := h.Alloc()
	require.NoError(t, err)
	require.Equal(t, a, b, "freed slot should be reused before growing")
	require.Equal(t, 0, h.Get(b).tag, "reused slot must be zeroed")
}

func TestGrowsAcrossPages(t *testing.T) {
	t.Parallel()
	h := New(next, 0)
	const n = defaultPageSize + 10
	refs := make([]Ref, n)
	for i := range refs {
		ref, err := h.Alloc()
		require.NoError(t, err)
		refs[i] = ref
		h.Get(ref).tag = i
	}
	require.Equal(t, n, h.Len())
	require.GreaterOrEqual(t, h.Cap(), n)
	for i, ref := range refs {
		require.Equal(t, i, h.Get(ref).tag)
	}
}

func TestMaxBlocksExhaustion(t *testing.T) {
	t.Parallel()
	h := New(next, 4)
	for i := 0; i < 4; i++ {
		_, err := h.Alloc()
		require.NoError(t, err)
	}
	_, err := h.Alloc()
	require.Error(t, err)
}

func TestMaxBlocksAllowsReuseAfterFree(t *testing.T) {
	t.Parallel()
	h := New(next, 4)
	var refs []Ref
	for i := 0; i < 4; i++ {
		ref, err := h.Alloc()
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	h.Free(refs[0])
	_, err := h.Alloc()
	require.NoError(t, err)
}

// stressRef mirrors the teacher repository's stress-test methodology
// (quantumqueue64's queue_stress_test.go): drive the allocator through a
// long, deterministically seeded sequence of random alloc/free pairs and
// check every invariant a reference set-based model would.
func TestStressAllocFreeAgainstReferenceSet(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(12345))
	h := New(next, 0)
	live := map[Ref]int{}
	var liveList []Ref

	for i := 0; i < 200_000; i++ {
		if len(liveList) == 0 || rng.Intn(2) == 0 {
			ref, err := h.Alloc()
			require.NoError(t, err)
			_, exists := live[ref]
			require.False(t, exists, "Alloc returned a still-live ref")
			live[ref] = i
			liveList = append(liveList, ref)
			h.Get(ref).tag = i
		} else {
			idx := rng.Intn(len(liveList))
			ref := liveList[idx]
			require.Equal(t, live[ref], h.Get(ref).tag)
			h.Free(ref)
			delete(live, ref)
			liveList[idx] = liveList[len(liveList)-1]
			liveList = liveList[:len(liveList)-1]
		}
	}
	require.Equal(t, len(live), h.Len())
}
