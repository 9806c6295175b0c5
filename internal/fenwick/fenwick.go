// Package fenwick implements a 1-indexed binary indexed tree over a
// dynamically growable index space, supporting point update, prefix sum,
// and weighted find, all in O(log N) (spec §4.2).
//
// The classic BIT recurrence (index & -index for the low bit, walking by
// that step) is the simplest structure that satisfies spec §4.2's
// "find(x): smallest i such that prefix_sum(i) >= x" requirement over
// arbitrary positive real weights. The teacher repository's own
// hierarchical structures (quantumqueue64.groupBlock's two-level bitmap
// summary) solve a related but different problem — O(1) minimum-set-bit
// lookup over *presence* bits for a fixed integer tick range — and don't
// carry summed floating-point weights, so they aren't reused here
// directly; see DESIGN.md. What is reused is the teacher's habit of
// keeping index 0 permanently unused/sentinel and growing the backing
// array geometrically (PooledQuantumQueue's page-growth idiom) rather
// than reallocating one slot at a time.
package fenwick

import "github.com/dp-rice/msprime-lambda/internal/simerr"

// Tree is a Fenwick tree over indices 1..n. Index 0 is unused (BIT
// convention); this also doubles as the "no lineage" sentinel when a
// caller stores index 0 for a not-yet-allocated slot.
type Tree struct {
	bit   []float64 // bit[i] holds the partial sum for the BIT node at i
	raw   []float64 // raw[i] holds the current weight at i, for Increment's delta and for Weight()
	total float64
}

// New returns an empty tree sized for at least n indices (1..n). It
// grows automatically past n on demand.
func New(n int) *Tree {
	if n < 1 {
		n = 1
	}
	return &Tree{bit: make([]float64, n+1), raw: make([]float64, n+1)}
}

// ensure grows the backing arrays so index i is addressable.
func (t *Tree) ensure(i int) {
	if i < len(t.bit) {
		return
	}
	newLen := len(t.bit)
	for newLen <= i {
		newLen *= 2
	}
	raw := make([]float64, newLen)
	copy(raw, t.raw)
	// Rebuild the partial sums from raw: BIT nodes that only exist in the
	// larger array cover ranges that include already-stored weights.
	bit := make([]float64, newLen)
	for j := 1; j < newLen; j++ {
		bit[j] += raw[j]
		if p := j + (j & -j); p < newLen {
			bit[p] += bit[j]
		}
	}
	t.bit, t.raw = bit, raw
}

// N returns the current addressable index range (inclusive upper bound).
func (t *Tree) N() int { return len(t.bit) - 1 }

// Weight returns the current weight stored at index i (not a prefix sum).
func (t *Tree) Weight(i int) float64 {
	if i < 1 || i >= len(t.raw) {
		return 0
	}
	return t.raw[i]
}

// Set assigns the absolute weight at index i, replacing whatever was
// there. Weights must be non-negative and finite; a negative or
// non-finite weight is an engine invariant violation (spec §4.4 failure
// semantics: "negative weights... are fatal").
func (t *Tree) Set(i int, w float64) error {
	if w < 0 || isNonFinite(w) {
		return simerr.Internal("fenwick: non-finite or negative weight %v at index %d", w, i)
	}
	t.ensure(i)
	delta := w - t.raw[i]
	t.raw[i] = w
	t.total += delta
	for ; i < len(t.bit); i += i & -i {
		t.bit[i] += delta
	}
	return nil
}

// Increment adds delta to the weight at index i.
func (t *Tree) Increment(i int, delta float64) error {
	return t.Set(i, t.Weight(i)+delta)
}

// Total returns the sum of all weights (spec §4.2: Total).
func (t *Tree) Total() float64 { return t.total }

// PrefixSum returns the sum of weights over [1, i].
func (t *Tree) PrefixSum(i int) float64 {
	if i >= len(t.bit) {
		i = len(t.bit) - 1
	}
	var s float64
	for ; i > 0; i -= i & -i {
		s += t.bit[i]
	}
	return s
}

// Find returns the smallest i such that PrefixSum(i) >= x, descending the
// implicit BIT layout in O(log N). Ties (multiple indices with the same
// prefix sum, i.e. zero-weight entries) resolve to the smallest such i,
// which is what the binary descent below naturally produces (spec §4.2:
// "Tie-break: the smallest index wins").
func (t *Tree) Find(x float64) int {
	if x <= 0 {
		return t.firstPositive()
	}
	pos := 0
	logN := highestPow2(len(t.bit) - 1)
	for step := logN; step > 0; step >>= 1 {
		next := pos + step
		if next < len(t.bit) && t.bit[next] < x {
			pos = next
			x -= t.bit[next]
		}
	}
	return pos + 1
}

// firstPositive returns the smallest index carrying positive weight, or 0
// if every weight is zero (an empty tree). Used only for the degenerate
// x<=0 edge of Find.
func (t *Tree) firstPositive() int {
	for i := 1; i < len(t.raw); i++ {
		if t.raw[i] > 0 {
			return i
		}
	}
	return 0
}

func highestPow2(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

func isNonFinite(f float64) bool {
	return f != f || f > maxFinite || f < -maxFinite
}

const maxFinite = 1.7976931348623157e+308
