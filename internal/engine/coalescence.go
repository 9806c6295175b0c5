package engine

import (
	"math"
	"sort"

	"github.com/dp-rice/msprime-lambda/internal/segment"
	"github.com/dp-rice/msprime-lambda/internal/simerr"
	"github.com/dp-rice/msprime-lambda/internal/treeseq"
)

// doCoalescence implements spec §4.4's common-ancestor handler: pick a
// population weighted by coalHaz, draw two distinct lineages uniformly
// by rank from its AVL, and merge their segment lists.
func (s *Simulator) doCoalescence(coalHaz []float64, draw float64) error {
	p, err := pickWeighted(coalHaz, draw)
	if err != nil {
		return err
	}
	avl := s.avl[p]
	k := avl.Size()
	if k < 2 {
		return simerr.Internal("engine: coalescence hazard positive but population %d has %d lineages", p, k)
	}
	rankA := s.rng.UintN(k)
	rankB := s.rng.UintN(k - 1)
	if rankB >= rankA {
		rankB++
	}
	refA := avl.SelectByRank(rankA)
	refB := avl.SelectByRank(rankB)

	infoA, infoB := avl.Value(refA), avl.Value(refB)
	idA, idB := int(infoA.FenwickIdx), int(infoB.FenwickIdx)

	avl.Delete(refA)
	avl.Delete(refB)
	s.retireLineage(idA)
	s.retireLineage(idB)

	mergedHead, err := s.mergeLineages(infoA.Head, infoB.Head, p)
	if err != nil {
		return err
	}
	if mergedHead == segment.Nil {
		return nil
	}

	id := s.ids.alloc()
	weight := s.geneticSpan(mergedHead)
	if err := s.fen.Set(id, weight); err != nil {
		return err
	}
	ref, err := avl.Insert(s.segs.Left(mergedHead), segment.Info{Head: mergedHead, FenwickIdx: int32(id)})
	if err != nil {
		return err
	}
	s.lineages[id] = lineageRef{population: p, avlRef: ref, inUse: true}
	return nil
}

// retireLineage removes a destroyed lineage's bookkeeping: its Fenwick
// weight is zeroed (so it no longer contributes to Total()) and its id
// is returned to the freelist for deterministic reuse (spec §9).
func (s *Simulator) retireLineage(id int) {
	_ = s.fen.Set(id, 0)
	s.ids.release(id)
	delete(s.lineages, id)
}

// mergeLineages sweeps two sorted, non-overlapping segment lists
// (headA, headB) and builds the merged lineage's segment list, emitting
// one coalescence record per sub-interval where both parents carry
// material (spec §4.4). It returns the merged lineage's head, or
// segment.Nil if every sub-interval either lineage covered turned out
// to be fully resolved (no other lineage remains there either).
func (s *Simulator) mergeLineages(headA, headB segment.Ref, pop int) (segment.Ref, error) {
	bounds := s.sweepBounds(headA, headB)
	if len(bounds) < 2 {
		return segment.Nil, nil
	}

	var parent int32 = -1
	var anyCoalesced bool
	var mergedHead, mergedTail segment.Ref = segment.Nil, segment.Nil

	appendSeg := func(left, right float64, value int32, popLabel int16) error {
		seg, err := s.segs.New(left, right, value, popLabel)
		if err != nil {
			return err
		}
		if mergedHead == segment.Nil {
			mergedHead = seg
		} else {
			s.segs.Append(mergedTail, seg)
		}
		mergedTail = seg
		return nil
	}

	curA, curB := headA, headB
	for i := 0; i+1 < len(bounds); i++ {
		x, y := bounds[i], bounds[i+1]
		for curA != segment.Nil && s.segs.Right(curA) <= x {
			curA = s.segs.Next(curA)
		}
		for curB != segment.Nil && s.segs.Right(curB) <= x {
			curB = s.segs.Next(curB)
		}
		coveredA := curA != segment.Nil && s.segs.Left(curA) <= x && s.segs.Right(curA) >= y
		coveredB := curB != segment.Nil && s.segs.Left(curB) <= x && s.segs.Right(curB) >= y

		switch {
		case coveredA && coveredB:
			if parent == -1 {
				parent = s.nextNode
			}
			children := []int32{s.segs.Value(curA), s.segs.Value(curB)}
			sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
			s.tree.AddRecord(treeseq.Record{
				Left: x, Right: y, Parent: parent, Children: children,
				Time: s.t, Population: int16(pop),
			})
			anyCoalesced = true

			s.ov.Adjust(x, y, -2)
			other := s.ov.CountAt(x)
			if other > 0 {
				if err := appendSeg(x, y, parent, int16(pop)); err != nil {
					return segment.Nil, err
				}
				s.ov.Adjust(x, y, 1)
			}
			// other == 0: fully resolved here, drop (no append, no re-add).
		case coveredA:
			if err := appendSeg(x, y, s.segs.Value(curA), int16(pop)); err != nil {
				return segment.Nil, err
			}
		case coveredB:
			if err := appendSeg(x, y, s.segs.Value(curB), int16(pop)); err != nil {
				return segment.Nil, err
			}
		}
	}

	if anyCoalesced {
		s.nextNode++
		s.tree.AddNode(treeseq.NodeInfo{Time: s.t, Population: int16(pop)})
	}
	s.freeLineage(headA)
	s.freeLineage(headB)
	return mergedHead, nil
}

// freeLineage releases every segment in a now-destroyed lineage back to
// the segment store.
func (s *Simulator) freeLineage(head segment.Ref) {
	for seg := head; seg != segment.Nil; {
		next := s.segs.Next(seg)
		s.segs.Free(seg)
		seg = next
	}
}

// sweepBounds returns the sorted, deduplicated set of boundaries across
// headA's segments, headB's segments, and the overlap counter's own
// breakpoints within their combined span, giving a fine enough
// partition that "covered by other lineages" is constant within each
// sub-interval.
func (s *Simulator) sweepBounds(headA, headB segment.Ref) []float64 {
	lo := math.Min(s.boundLeft(headA), s.boundLeft(headB))
	hi := math.Max(s.boundRight(headA), s.boundRight(headB))
	if headA == segment.Nil {
		lo, hi = s.boundLeft(headB), s.boundRight(headB)
	}
	if headB == segment.Nil {
		lo, hi = s.boundLeft(headA), s.boundRight(headA)
	}

	set := map[float64]struct{}{lo: {}, hi: {}}
	for seg := headA; seg != segment.Nil; seg = s.segs.Next(seg) {
		set[s.segs.Left(seg)] = struct{}{}
		set[s.segs.Right(seg)] = struct{}{}
	}
	for seg := headB; seg != segment.Nil; seg = s.segs.Next(seg) {
		set[s.segs.Left(seg)] = struct{}{}
		set[s.segs.Right(seg)] = struct{}{}
	}
	for _, b := range s.ov.Breakpoints(lo, hi) {
		set[b] = struct{}{}
	}

	out := make([]float64, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Float64s(out)
	return out
}

func (s *Simulator) boundLeft(head segment.Ref) float64 {
	if head == segment.Nil {
		return math.Inf(1)
	}
	return s.segs.Left(head)
}

func (s *Simulator) boundRight(head segment.Ref) float64 {
	if head == segment.Nil {
		return math.Inf(-1)
	}
	return s.segs.Right(s.segs.Tail(head))
}
