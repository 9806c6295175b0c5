package engine

import "github.com/dp-rice/msprime-lambda/internal/segment"

// doRecombination implements spec §4.4's recombination handler: sample
// which lineage recombines (weighted by genetic span via the Fenwick
// tree), convert the draw to a physical breakpoint, and split the
// lineage there.
func (s *Simulator) doRecombination() error {
	u := s.rng.UniformRange(s.fen.Total())
	id := s.fen.Find(u)
	prefix := s.fen.PrefixSum(id - 1)
	offset := u - prefix

	lr, ok := s.lineages[id]
	if !ok {
		return nil // degenerate: freshly retired id raced a stale draw; treat as no-op
	}
	avl := s.avl[lr.population]
	info := avl.Value(lr.avlRef)
	head := info.Head
	tail := s.segs.Tail(head)

	geneticLeft := s.cfg.RecombMap.PhysicalToGenetic(s.segs.Left(head))
	x := s.cfg.RecombMap.GeneticToPhysical(geneticLeft + offset)

	if x <= s.segs.Left(head) || x >= s.segs.Right(tail) {
		return nil // breakpoint landed on a span edge; no-op per spec §9's open question
	}

	keptHead, newHead := s.splitLineage(head, x)
	if keptHead == segment.Nil || newHead == segment.Nil {
		return nil
	}

	weightKept := s.geneticSpan(keptHead)
	if err := s.fen.Set(id, weightKept); err != nil {
		return err
	}

	newID := s.ids.alloc()
	weightNew := s.geneticSpan(newHead)
	if err := s.fen.Set(newID, weightNew); err != nil {
		return err
	}
	ref, err := avl.Insert(s.segs.Left(newHead), segment.Info{Head: newHead, FenwickIdx: int32(newID)})
	if err != nil {
		return err
	}
	s.lineages[newID] = lineageRef{population: lr.population, avlRef: ref, inUse: true}
	return nil
}

// splitLineage divides the segment list headed at head at physical
// position x: segments wholly left of x stay in the kept lineage,
// segments wholly right start the new lineage, and a segment straddling
// x is split into two (spec §4.4's recombination sub-steps).
func (s *Simulator) splitLineage(head segment.Ref, x float64) (keptHead, newHead segment.Ref) {
	cur := head
	prev := segment.Nil

	for cur != segment.Nil {
		left, right := s.segs.Left(cur), s.segs.Right(cur)
		if right <= x {
			prev = cur
			cur = s.segs.Next(cur)
			continue
		}
		if left >= x {
			break
		}

		rest := s.segs.Next(cur)
		newSeg, err := s.segs.New(x, right, s.segs.Value(cur), s.segs.Population(cur))
		if err != nil {
			return segment.Nil, segment.Nil
		}
		s.segs.SetRight(cur, x)
		s.segs.SetNext(cur, segment.Nil)
		s.segs.SetNext(newSeg, rest)
		s.segs.SetPrev(newSeg, segment.Nil)
		if rest != segment.Nil {
			s.segs.SetPrev(rest, newSeg)
		}
		prev = cur
		cur = newSeg
		break
	}

	if prev != segment.Nil {
		s.segs.SetNext(prev, segment.Nil)
	}
	if cur != segment.Nil {
		s.segs.SetPrev(cur, segment.Nil)
	}

	keptHead = head
	if prev == segment.Nil {
		keptHead = segment.Nil
	}
	newHead = cur
	return keptHead, newHead
}
