// Package segment implements the ancestral-segment and lineage
// bookkeeping from spec §3: a segment is a maximal contiguous interval
// of genome carried by one lineage, and a lineage is a doubly-linked
// list of segments addressed by its head.
//
// Segments are allocated from an objectheap.Heap rather than the Go
// heap, directly generalizing the teacher repository's intrusive
// doubly-linked arena node (quantumqueue64.node's prev/next Handle
// fields) from tick-bucket membership to genomic-interval membership.
package segment

import (
	"github.com/dp-rice/msprime-lambda/internal/objectheap"
	"github.com/dp-rice/msprime-lambda/internal/simerr"
)

// Ref names a segment in a Store. Nil means "no segment".
type Ref = objectheap.Ref

// Nil is the null segment reference.
const Nil Ref = objectheap.RefNil

// block is the arena-resident representation of one ancestral segment
// (spec §3). freeLink is reserved for objectheap's intrusive freelist
// and never touched while the segment is live.
type block struct {
	Left, Right float64
	Value       int32 // most recent node id ancestral to this interval
	Population  int16
	Prev, Next  Ref
	freeLink    Ref
}

// Store owns every live segment across every lineage in one Simulator
// instance. Stores are never shared across engine instances (spec §5).
type Store struct {
	heap *objectheap.Heap[block]
}

// NewStore returns an empty segment store.
func NewStore() *Store {
	return &Store{heap: objectheap.New(func(b *block) *Ref { return &b.freeLink }, 0)}
}

// New allocates one segment [left, right) carrying node id value in
// population pop, with no links yet.
func (s *Store) New(left, right float64, value int32, pop int16) (Ref, error) {
	if !(right > left) {
		return Nil, simerr.Internal("segment: right (%v) must exceed left (%v)", right, left)
	}
	ref, err := s.heap.Alloc()
	if err != nil {
		return Nil, err
	}
	b := s.heap.Get(ref)
	b.Left, b.Right, b.Value, b.Population = left, right, value, pop
	b.Prev, b.Next = Nil, Nil
	return ref, nil
}

// Free releases a segment. Callers must already have unlinked it from
// any lineage.
func (s *Store) Free(ref Ref) { s.heap.Free(ref) }

func (s *Store) Left(ref Ref) float64        { return s.heap.Get(ref).Left }
func (s *Store) Right(ref Ref) float64       { return s.heap.Get(ref).Right }
func (s *Store) Value(ref Ref) int32         { return s.heap.Get(ref).Value }
func (s *Store) Population(ref Ref) int16    { return s.heap.Get(ref).Population }
func (s *Store) Prev(ref Ref) Ref            { return s.heap.Get(ref).Prev }
func (s *Store) Next(ref Ref) Ref            { return s.heap.Get(ref).Next }

func (s *Store) SetLeft(ref Ref, v float64)       { s.heap.Get(ref).Left = v }
func (s *Store) SetRight(ref Ref, v float64)      { s.heap.Get(ref).Right = v }
func (s *Store) SetValue(ref Ref, v int32)        { s.heap.Get(ref).Value = v }
func (s *Store) SetPopulation(ref Ref, v int16)   { s.heap.Get(ref).Population = v }
func (s *Store) SetPrev(ref Ref, v Ref)           { s.heap.Get(ref).Prev = v }
func (s *Store) SetNext(ref Ref, v Ref)           { s.heap.Get(ref).Next = v }

// Tail walks to the last segment in ref's lineage.
func (s *Store) Tail(ref Ref) Ref {
	for {
		next := s.Next(ref)
		if next == Nil {
			return ref
		}
		ref = next
	}
}

// Append links next onto the end of a lineage whose current last segment
// is tail. Callers track tail themselves to avoid an O(n) walk per call.
func (s *Store) Append(tail, next Ref) {
	s.SetNext(tail, next)
	s.SetPrev(next, tail)
}

// Info is the payload stored in a population's AVL index for one
// lineage: its head segment and its stable Fenwick index.
type Info struct {
	Head       Ref
	FenwickIdx int32
}
