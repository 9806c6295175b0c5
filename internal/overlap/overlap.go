// Package overlap tracks, as a step function over [0, L), how many
// distinct lineages currently carry ancestral material at each genomic
// position. This is the "running overlap count" spec §4.4/§9 describes
// as the termination driver: a position has found its local most recent
// common ancestor once its count falls to 1, and the whole simulation
// is done once that holds everywhere.
//
// The structure is a plain sorted list of breakpoints with a count per
// bin, not a tree: lineage churn touches a handful of bins per event and
// the domain stays small relative to the number of coalescent events, so
// an O(m) scan per update is not the bottleneck the Fenwick tree exists
// to avoid (spec §2 allocates only 5% of engine effort to this kind of
// bookkeeping, versus 40% to the event loop itself).
package overlap

import "sort"

// Counter is a step function over [0, L) counting active lineages.
type Counter struct {
	length float64
	bounds []float64 // bounds[0]=0, bounds[len-1]=length, strictly increasing
	counts []int      // counts[i] applies to [bounds[i], bounds[i+1])
}

// New returns a Counter over [0, length) with the given initial uniform
// count (the number of sample lineages, each covering the whole genome).
func New(length float64, initial int) *Counter {
	return &Counter{
		length: length,
		bounds: []float64{0, length},
		counts: []int{initial},
	}
}

// Adjust adds delta to the count over [left, right).
func (c *Counter) Adjust(left, right float64, delta int) {
	if delta == 0 || left >= right {
		return
	}
	c.split(left)
	c.split(right)
	i := c.indexOf(left)
	j := c.indexOf(right)
	for k := i; k < j; k++ {
		c.counts[k] += delta
	}
}

// CountAt returns the count at position x (x must be in [0, length)).
func (c *Counter) CountAt(x float64) int {
	bin := c.binOf(x)
	return c.counts[bin]
}

// MaxCount returns the maximum count anywhere in [0, length).
func (c *Counter) MaxCount() int {
	m := 0
	for _, v := range c.counts {
		if v > m {
			m = v
		}
	}
	return m
}

// Done reports whether every position has at most one ancestral lineage,
// i.e. the simulation has reached its termination condition (spec §4.4
// step 5).
func (c *Counter) Done() bool { return c.MaxCount() <= 1 }

// Breakpoints returns the sorted set of interior boundaries strictly
// inside (lo, hi), used by the engine's coalescence handler to build a
// fine enough sweep partition that accounts for lineages other than the
// pair being merged.
func (c *Counter) Breakpoints(lo, hi float64) []float64 {
	i := sort.SearchFloat64s(c.bounds, lo)
	var out []float64
	for ; i < len(c.bounds) && c.bounds[i] < hi; i++ {
		if c.bounds[i] > lo {
			out = append(out, c.bounds[i])
		}
	}
	return out
}

// split ensures x is a boundary in c.bounds (a no-op if it already is,
// or if x is outside (0, length)).
func (c *Counter) split(x float64) {
	if x <= 0 || x >= c.length {
		return
	}
	idx := sort.SearchFloat64s(c.bounds, x)
	if idx < len(c.bounds) && c.bounds[idx] == x {
		return
	}
	bin := idx - 1
	c.bounds = append(c.bounds, 0)
	copy(c.bounds[idx+1:], c.bounds[idx:])
	c.bounds[idx] = x
	c.counts = append(c.counts, 0)
	copy(c.counts[idx+1:], c.counts[idx:])
	c.counts[idx] = c.counts[bin]
}

// indexOf returns the bounds index exactly equal to x; x must already be
// a boundary (callers split before calling this).
func (c *Counter) indexOf(x float64) int {
	return sort.SearchFloat64s(c.bounds, x)
}

func (c *Counter) binOf(x float64) int {
	i := sort.SearchFloat64s(c.bounds, x)
	if i < len(c.bounds) && c.bounds[i] == x {
		return i
	}
	return i - 1
}
