// Package treeseq implements the tree-sequence builder from spec §4.5:
// it accepts the coalescence-record stream the engine emits, sorts it,
// and builds the two index permutations (by left, by right) that let a
// caller walk trees left-to-right or right-to-left in amortised O(1)
// per tree.
//
// The left/right sort-permutation idea is grounded on
// forestrie-go-merklelog's mmr package, which builds a parallel
// insertion-order index once over an append-only log and reuses it for
// repeated interval-ordered traversal rather than re-sorting per query.
package treeseq

import (
	"sort"

	"github.com/dp-rice/msprime-lambda/internal/simerr"
)

// Record is one coalescence record (spec §3): on [Left, Right), Parent
// is the immediate ancestor of every id in Children.
type Record struct {
	Left, Right float64
	Parent      int32
	Children    []int32
	Time        float64
	Population  int16
}

// NodeInfo is the per-node metadata the builder accumulates as the
// engine allocates node ids (spec §3: "Each node has an associated time
// ... and a population of assignment").
type NodeInfo struct {
	Time       float64
	Population int16
	IsSample   bool
}

// Builder accumulates records during a replicate and, once Finalize is
// called, exposes sorted, indexed access to the finished tree sequence.
type Builder struct {
	records []Record
	nodes   []NodeInfo
	length  float64

	finalized   bool
	byLeft      []int // permutation of records sorted by Left asc
	byRight     []int // permutation of records sorted by Right asc
	breakpoints []float64
}

// NewBuilder returns a Builder for a genome of the given length L.
func NewBuilder(length float64) *Builder {
	return &Builder{length: length}
}

// AddNode appends one node's metadata; nodes must be added in the order
// the engine assigns ids (spec §3: "Internal nodes are assigned in
// strictly increasing order").
func (b *Builder) AddNode(info NodeInfo) int32 {
	b.nodes = append(b.nodes, info)
	return int32(len(b.nodes) - 1)
}

// NumNodes returns the number of nodes registered so far.
func (b *Builder) NumNodes() int { return len(b.nodes) }

// Node returns metadata for node id.
func (b *Builder) Node(id int32) NodeInfo { return b.nodes[id] }

// AddRecord appends one coalescence record emitted by the engine.
func (b *Builder) AddRecord(r Record) {
	children := append([]int32(nil), r.Children...)
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	r.Children = children
	b.records = append(b.records, r)
}

// Finalize sorts the accumulated records by (time, left) ascending
// (spec §4.4 "Record emission order" note) and builds the left/right
// traversal permutations plus the distinct-breakpoints list (spec §6).
func (b *Builder) Finalize() error {
	sort.SliceStable(b.records, func(i, j int) bool {
		if b.records[i].Time != b.records[j].Time {
			return b.records[i].Time < b.records[j].Time
		}
		return b.records[i].Left < b.records[j].Left
	})

	n := len(b.records)
	b.byLeft = make([]int, n)
	b.byRight = make([]int, n)
	for i := range b.byLeft {
		b.byLeft[i], b.byRight[i] = i, i
	}
	sort.SliceStable(b.byLeft, func(i, j int) bool {
		return b.records[b.byLeft[i]].Left < b.records[b.byLeft[j]].Left
	})
	sort.SliceStable(b.byRight, func(i, j int) bool {
		return b.records[b.byRight[i]].Right < b.records[b.byRight[j]].Right
	})

	if err := b.checkTiling(); err != nil {
		return err
	}
	b.breakpoints = distinctSortedLefts(b.records)
	b.finalized = true
	return nil
}

// checkTiling verifies spec §4.5's top-level invariant: records tile
// [0, L) exactly. It cuts [0, L) at every distinct record Left and
// checks that each resulting sub-interval, starting at 0 and ending at
// L, is spanned by at least one record, so the genome has no gap.
// Because each sub-interval may be covered by several records (one per
// internal node on the path to the root), this checks the union of
// intervals rather than a single chain; overlaps are not rejected.
func (b *Builder) checkTiling() error {
	if len(b.records) == 0 {
		if b.length == 0 {
			return nil
		}
		return simerr.Internal("treeseq: no records emitted for genome of length %v", b.length)
	}
	bounds := distinctSortedLefts(b.records)
	bounds = append(bounds, b.length)
	// Every boundary-to-boundary sub-interval must be covered by at
	// least one record whose [Left,Right) spans it.
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		covered := false
		for _, r := range b.records {
			if r.Left <= lo && r.Right >= hi {
				covered = true
				break
			}
		}
		if !covered {
			return simerr.Internal("treeseq: gap in record coverage over [%v, %v)", lo, hi)
		}
	}
	return nil
}

// distinctSortedLefts returns the sorted set of distinct Left values
// across records, plus 0; it is empty when there are no records. This
// list is exact because it comes from an
// in-memory sort+compaction pass over already-collected floats, not a
// bounded/approximate structure: the teacher repository's Deduper
// (dedupe.go) trades exactness for a fixed-size ring with age-based
// eviction, which is the right trade for a live log stream but wrong
// here, where §6 calls for an exact distinct set over a bounded,
// already-finished record list.
func distinctSortedLefts(records []Record) []float64 {
	if len(records) == 0 {
		return nil
	}
	lefts := make([]float64, len(records)+1)
	for i, r := range records {
		lefts[i+1] = r.Left
	}
	sort.Float64s(lefts)
	out := lefts[:0:0]
	out = append(out, lefts[0])
	for _, v := range lefts[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Breakpoints returns the sorted set of distinct Left boundaries
// appearing in any record (spec §6). Finalize must have run.
func (b *Builder) Breakpoints() []float64 {
	b.mustBeFinalized()
	return b.breakpoints
}

// NumTrees returns how many distinct genomic intervals the finished
// sequence partitions [0, L) into.
func (b *Builder) NumTrees() int {
	b.mustBeFinalized()
	return len(b.breakpoints)
}

// Interval is one genomic sub-interval and the parent-array
// representation of the tree that applies over it (spec §4.5: "tree is
// represented as a parent array pi[0..num_nodes) where pi[root]=NULL").
type Interval struct {
	Left, Right float64
	Parent      []int32 // Parent[id] == -1 means id is a root in this tree
}

// Trees returns every (interval, tree) pair in left-to-right order, by
// sweeping the by-left/by-right permutations once: records become
// active when their Left boundary is reached and inactive once their
// Right boundary passes, giving amortised O(1) per tree as spec §4.5
// requires. Finalize must have run.
func (b *Builder) Trees() []Interval {
	b.mustBeFinalized()
	numNodes := len(b.nodes)
	parent := make([]int32, numNodes)
	setBy := make([]int, numNodes)
	for i := range parent {
		parent[i] = -1
		setBy[i] = -1
	}

	var out []Interval
	li, ri := 0, 0
	boundaries := append([]float64(nil), b.breakpoints...)
	boundaries = append(boundaries, b.length)

	for t := 0; t+1 < len(boundaries); t++ {
		left, right := boundaries[t], boundaries[t+1]
		for li < len(b.byLeft) && b.records[b.byLeft[li]].Left <= left {
			idx := b.byLeft[li]
			r := b.records[idx]
			if r.Left <= left && r.Right > left {
				for _, c := range r.Children {
					parent[c] = r.Parent
					setBy[c] = idx
				}
			}
			li++
		}
		for ri < len(b.byRight) && b.records[b.byRight[ri]].Right <= left {
			idx := b.byRight[ri]
			r := b.records[idx]
			for _, c := range r.Children {
				// Only this record's own assignment may be retracted: a
				// later record sharing the same parent id may have
				// already claimed c for the next interval.
				if setBy[c] == idx {
					parent[c] = -1
					setBy[c] = -1
				}
			}
			ri++
		}
		snapshot := append([]int32(nil), parent...)
		out = append(out, Interval{Left: left, Right: right, Parent: snapshot})
	}
	return out
}

func (b *Builder) mustBeFinalized() {
	if !b.finalized {
		panic("treeseq: Finalize must be called before reading results")
	}
}
