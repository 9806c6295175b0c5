// Package engine implements the simulator core from spec §4.4: the
// competing-hazards continuous-time loop that drives coalescence,
// recombination, migration, and demographic events to completion and
// streams coalescence records into a tree-sequence builder.
//
// The loop itself is the direct generalization of the teacher
// repository's single-threaded, allocation-averse event dispatch
// (reading the next event, branching on its kind, mutating bespoke
// arena-backed structures) from an EVM log/tick stream to a compound
// Poisson process over coalescent/recombination/migration/demographic
// hazards. Nothing here is async: spec §5 forbids it, and the teacher's
// own style — a plain loop, no goroutines on the hot path — is already
// the right shape.
package engine

import (
	"math"

	"github.com/dp-rice/msprime-lambda/internal/avlindex"
	"github.com/dp-rice/msprime-lambda/internal/debug"
	"github.com/dp-rice/msprime-lambda/internal/demography"
	"github.com/dp-rice/msprime-lambda/internal/fenwick"
	"github.com/dp-rice/msprime-lambda/internal/overlap"
	"github.com/dp-rice/msprime-lambda/internal/recombmap"
	"github.com/dp-rice/msprime-lambda/internal/rng"
	"github.com/dp-rice/msprime-lambda/internal/segment"
	"github.com/dp-rice/msprime-lambda/internal/simerr"
	"github.com/dp-rice/msprime-lambda/internal/treeseq"
)

// defaultMaxEvents bounds the main loop when a caller leaves
// Config.MaxEvents unset, so a pathological configuration (spec §8
// boundary scenario 4) fails fast instead of spinning forever.
const defaultMaxEvents = 10_000_000

// Config is everything one replicate's Simulator needs. It is assumed
// already validated by the caller (the public coalescent package owns
// eager validation per spec §7's "detected before simulation begins"
// policy); the engine still defends its own invariants at runtime.
type Config struct {
	SamplePopulations []int // len == n; SamplePopulations[i] is sample i's starting population
	Demography        *demography.Model
	Events            []demography.Event
	RecombMap         *recombmap.Map
	RandomSeed        uint64
	MaxEvents         int // 0 means defaultMaxEvents
}

// lineageRef locates a live lineage: which population's AVL holds it
// and under which node. Its Fenwick id is the key it is stored under in
// Simulator.lineages.
type lineageRef struct {
	population int
	avlRef     avlindex.Ref
	inUse      bool
}

// Simulator owns one replicate's full mutable state. Simulators are
// never shared across goroutines or reused across replicates (spec §5).
type Simulator struct {
	cfg Config

	rng  *rng.Stream
	segs *segment.Store
	avl  []*avlindex.Index[segment.Info]
	fen  *fenwick.Tree
	ids  idpool
	ov   *overlap.Counter
	tree *treeseq.Builder

	model    *demography.Model
	events   *demography.Queue
	lineages map[int]lineageRef // keyed by Fenwick id

	t         float64
	nextNode  int32
	numEvents int
	maxEvents int

	cancelled bool
}

// New builds a Simulator ready to Run. It allocates the initial
// lineages (one per sample) but performs no coalescence.
func New(cfg Config, length float64) (*Simulator, error) {
	n := len(cfg.SamplePopulations)
	if n == 0 {
		return nil, simerr.Config("sample_size", "at least one sample is required")
	}
	if cfg.Demography == nil {
		return nil, simerr.Internal("engine: Config.Demography must not be nil")
	}
	if cfg.RecombMap == nil {
		return nil, simerr.Internal("engine: Config.RecombMap must not be nil")
	}
	numPop := cfg.Demography.NumPopulations()
	for i, p := range cfg.SamplePopulations {
		if p < 0 || p >= numPop {
			return nil, simerr.Config("sample_populations", "sample %d assigned to population %d out of range [0,%d)", i, p, numPop)
		}
	}

	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}

	s := &Simulator{
		cfg:       cfg,
		rng:       rng.New(cfg.RandomSeed),
		segs:      segment.NewStore(),
		avl:       make([]*avlindex.Index[segment.Info], numPop),
		fen:       fenwick.New(n),
		ov:        overlap.New(length, n),
		tree:      treeseq.NewBuilder(length),
		model:     cfg.Demography,
		events:    demography.NewQueue(cfg.Events),
		lineages:  make(map[int]lineageRef, n),
		nextNode:  int32(n),
		maxEvents: maxEvents,
	}
	for p := range s.avl {
		s.avl[p] = avlindex.New[segment.Info]()
	}

	for i, pop := range cfg.SamplePopulations {
		head, err := s.segs.New(0, length, int32(i), int16(pop))
		if err != nil {
			return nil, err
		}
		id := s.ids.alloc()
		ref, err := s.avl[pop].Insert(0, segment.Info{Head: head, FenwickIdx: int32(id)})
		if err != nil {
			return nil, err
		}
		weight := s.geneticSpan(head)
		if err := s.fen.Set(id, weight); err != nil {
			return nil, err
		}
		s.lineages[id] = lineageRef{population: pop, avlRef: ref, inUse: true}
		s.tree.AddNode(treeseq.NodeInfo{Time: 0, Population: int16(pop), IsSample: true})
	}

	return s, nil
}

// Cancel requests cooperative cancellation; Run observes it between
// iterations of the main loop (spec §5).
func (s *Simulator) Cancel() { s.cancelled = true }

// geneticSpan returns the Fenwick weight for the lineage headed at
// head: the genetic distance across its whole span, head.left to
// tail.right (spec §3's Fenwick-weight definition), not the sum of its
// individual segments' genetic lengths.
func (s *Simulator) geneticSpan(head segment.Ref) float64 {
	tail := s.segs.Tail(head)
	return s.cfg.RecombMap.PhysicalToGenetic(s.segs.Right(tail)) - s.cfg.RecombMap.PhysicalToGenetic(s.segs.Left(head))
}

// Run drives the main loop to completion (spec §4.4) and returns the
// finalized tree-sequence builder.
func (s *Simulator) Run() (*treeseq.Builder, error) {
	for {
		if s.cancelled {
			return nil, simerr.Cancelled()
		}
		if s.ov.Done() {
			break
		}
		if err := s.step(); err != nil {
			return nil, err
		}
	}
	if err := s.tree.Finalize(); err != nil {
		return nil, err
	}
	return s.tree, nil
}

// step executes one iteration of the main loop: either draining one due
// demographic event, or sampling and dispatching one coalescent event.
func (s *Simulator) step() error {
	s.numEvents++
	if s.numEvents > s.maxEvents {
		return simerr.Internal("engine: exceeded step budget of %d events without reaching a single remaining lineage at every site", s.maxEvents)
	}

	numPop := s.model.NumPopulations()
	coalHaz := make([]float64, numPop)
	migHaz := make([]float64, numPop)
	var coalTotal, migTotal float64
	for p := 0; p < numPop; p++ {
		k := s.avl[p].Size()
		if k >= 2 {
			kf := float64(k)
			n := s.model.Populations[p].EffectiveSize(s.t)
			if n <= 0 || isNonFinite(n) {
				return simerr.Numeric("engine: non-finite or non-positive effective size %v for population %d at time %v", n, p, s.t)
			}
			coalHaz[p] = kf * (kf - 1) / (2 * n)
			coalTotal += coalHaz[p]
		}
		row := s.model.MigrationRowTotal(p)
		migHaz[p] = float64(k) * row
		migTotal += migHaz[p]
	}
	recombTotal := s.fen.Total()
	lambda := coalTotal + recombTotal + migTotal

	var dt float64
	if lambda > 0 {
		dt = s.rng.ExpRate(lambda)
	} else {
		dt = math.Inf(1)
	}
	tCandidate := s.t + dt

	if ev, ok := s.events.Peek(); ok && ev.Time <= tCandidate {
		s.events.Pop()
		s.t = ev.Time
		return s.applyDemographicEvent(ev)
	}
	if lambda <= 0 {
		return simerr.Internal("engine: zero total event hazard with no demographic events remaining scheduled (see boundary scenario for isolated demes with no migration)")
	}

	s.t = tCandidate
	draw := s.rng.UniformRange(lambda)
	switch {
	case draw < coalTotal:
		return s.doCoalescence(coalHaz, draw)
	case draw < coalTotal+recombTotal:
		return s.doRecombination()
	default:
		return s.doMigration(migHaz, draw-coalTotal-recombTotal)
	}
}

func isNonFinite(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }

// applyDemographicEvent dispatches one scheduled event, either mutating
// model parameters in place (PopulationParametersChange,
// MigrationRateChange) or moving lineages (MassMigration).
func (s *Simulator) applyDemographicEvent(ev demography.Event) error {
	if ev.Kind == demography.MassMigration {
		return s.doMassMigration(ev)
	}
	debug.DropMessage("engine", "applying demographic event")
	return ev.Apply(s.model)
}

// doMassMigration moves each lineage currently in ev.Source to
// ev.Destination independently with probability ev.Proportion (spec §6).
func (s *Simulator) doMassMigration(ev demography.Event) error {
	src := s.avl[ev.Source]
	k := src.Size()
	if k == 0 {
		return nil
	}
	var toMove []avlindex.Ref
	for rank := 0; rank < k; rank++ {
		if s.rng.Bool(ev.Proportion) {
			toMove = append(toMove, src.SelectByRank(rank))
		}
	}
	for _, ref := range toMove {
		if err := s.moveLineage(ref, ev.Source, ev.Destination); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) moveLineage(ref avlindex.Ref, from, to int) error {
	info := s.avl[from].Value(ref)
	key := s.avl[from].Key(ref)
	s.avl[from].Delete(ref)

	newRef, err := s.avl[to].Insert(key, info)
	if err != nil {
		return err
	}
	lr := s.lineages[int(info.FenwickIdx)]
	lr.population = to
	lr.avlRef = newRef
	s.lineages[int(info.FenwickIdx)] = lr

	for seg := info.Head; seg != segment.Nil; seg = s.segs.Next(seg) {
		s.segs.SetPopulation(seg, int16(to))
	}
	return nil
}

// doMigration implements spec §4.4's migration handler: choose a source
// population weighted by migHaz, a destination weighted by the source's
// migration row, and move one uniformly chosen lineage.
func (s *Simulator) doMigration(migHaz []float64, draw float64) error {
	src, err := pickWeighted(migHaz, draw)
	if err != nil {
		return err
	}
	row := s.model.Migration[src]
	d, err := pickWeighted(row, s.rng.UniformRange(s.model.MigrationRowTotal(src)))
	if err != nil {
		return err
	}
	k := s.avl[src].Size()
	if k == 0 {
		return simerr.Internal("engine: migration hazard positive but source population %d has no lineages", src)
	}
	rank := s.rng.UintN(k)
	ref := s.avl[src].SelectByRank(rank)
	return s.moveLineage(ref, src, d)
}

// pickWeighted returns the smallest index i such that the cumulative
// sum of weights[0..i] exceeds draw, matching the Fenwick tie-break
// convention (smallest index wins) for consistency across the engine.
func pickWeighted(weights []float64, draw float64) (int, error) {
	var cum float64
	for i, w := range weights {
		cum += w
		if draw < cum {
			return i, nil
		}
	}
	if len(weights) == 0 {
		return 0, simerr.Internal("engine: pickWeighted called with no candidates")
	}
	return len(weights) - 1, nil
}
