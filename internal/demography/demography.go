// Package demography holds the population model from spec §3/§6:
// per-population size/growth state, the migration matrix, and the
// min-heap of scheduled demographic events that the engine drains
// before each competing-hazards draw.
//
// The event queue is a plain container/heap.Interface min-heap rather
// than an adaptation of one of the teacher's bucketed tick-queues
// (quantumqueue64/bucketqueue/compactqueue128): those are built for a
// bounded, small-integer tick domain with O(1) bucket indexing, but
// demographic events carry arbitrary real-valued times and a
// simulation run typically schedules only a handful of them, so the
// logarithmic, allocation-light container/heap is both simpler and a
// better fit — see DESIGN.md for why the bucket queues were not reused
// here. The discrete-event scheduling *pattern* itself (push events,
// pop by time, dispatch by kind) is grounded on
// other_examples/PaulHobbs-submit-queue-simulation__submit_queue.go and
// other_examples/akshitanchan-execution-fairness-simulator__eventloop.go.
package demography

import (
	"container/heap"
	"math"

	"github.com/dp-rice/msprime-lambda/internal/simerr"
)

// Population holds one population's size/growth model (spec §3).
// Effective size at time t is InitialSize * exp(-GrowthRate*(t-TimeOfLastChange)).
type Population struct {
	InitialSize      float64
	GrowthRate       float64
	TimeOfLastChange float64
}

// EffectiveSize returns N_p(t).
func (p Population) EffectiveSize(t float64) float64 {
	if p.GrowthRate == 0 {
		return p.InitialSize
	}
	return p.InitialSize * math.Exp(-p.GrowthRate*(t-p.TimeOfLastChange))
}

// Model owns the mutable population/migration state the engine updates
// as demographic events fire.
type Model struct {
	Populations []Population
	Migration   [][]float64 // Migration[i][j]: per-lineage rate i -> j (backward time)
}

// NewModel validates and returns a Model. The migration matrix's
// diagonal must be zero and every entry non-negative (spec §3).
func NewModel(pops []Population, migration [][]float64) (*Model, error) {
	d := len(pops)
	if d == 0 {
		return nil, simerr.Config("population_configurations", "at least one population is required")
	}
	if len(migration) != d {
		return nil, simerr.Config("migration_matrix", "must have %d rows, got %d", d, len(migration))
	}
	for i, row := range migration {
		if len(row) != d {
			return nil, simerr.Config("migration_matrix", "row %d must have %d columns, got %d", i, d, len(row))
		}
		for j, v := range row {
			if i == j && v != 0 {
				return nil, simerr.Config("migration_matrix", "diagonal entry [%d][%d] must be zero", i, j)
			}
			if v < 0 {
				return nil, simerr.Config("migration_matrix", "entry [%d][%d] must be non-negative, got %v", i, j, v)
			}
		}
	}
	for i, p := range pops {
		if p.InitialSize <= 0 {
			return nil, simerr.Config("population_configurations", "population %d initial_size must be positive, got %v", i, p.InitialSize)
		}
	}
	m := make([][]float64, d)
	for i := range migration {
		m[i] = append([]float64(nil), migration[i]...)
	}
	return &Model{Populations: append([]Population(nil), pops...), Migration: m}, nil
}

// NumPopulations returns the population count d.
func (m *Model) NumPopulations() int { return len(m.Populations) }

// MigrationRowTotal returns sum_j Migration[p][j], the per-lineage total
// outbound migration hazard for population p (spec §4.4).
func (m *Model) MigrationRowTotal(p int) float64 {
	var s float64
	for _, v := range m.Migration[p] {
		s += v
	}
	return s
}

// ---------------------------------------------------------------------------
// Demographic events (spec §6)
// ---------------------------------------------------------------------------

// EventKind distinguishes the three demographic-event shapes spec §6
// defines.
type EventKind int

const (
	PopulationParametersChange EventKind = iota
	MigrationRateChange
	MassMigration
)

// AllPopulations is the sentinel for PopulationParametersChange.Population
// meaning "apply to every population" (spec §6: "population_id | -1 for all").
const AllPopulations = -1

// AllOffDiagonal is the sentinel for MigrationRateChange meaning "every
// off-diagonal entry" rather than one (i,j) pair.
const AllOffDiagonal = -1

// Event is one scheduled demographic event. Only the fields relevant to
// Kind are meaningful; the rest are zero.
type Event struct {
	Time  float64
	Kind  EventKind
	Seq   int // submission order, for the stable tie-break spec §4.4 requires

	// PopulationParametersChange
	Population  int // or AllPopulations
	InitialSize *float64
	GrowthRate  *float64

	// MigrationRateChange
	Rate      float64
	MatrixI   int // or AllOffDiagonal
	MatrixJ   int

	// MassMigration
	Source      int
	Destination int
	Proportion  float64
}

// Validate checks one event's fields against the number of populations
// in the model it will run against. The queue itself accepts events in
// any time order and sorts them.
func (e Event) Validate(numPops int) error {
	if e.Time < 0 || isNonFinite(e.Time) {
		return simerr.Config("demographic_events", "event time must be non-negative and finite, got %v", e.Time)
	}
	switch e.Kind {
	case PopulationParametersChange:
		if e.Population != AllPopulations && (e.Population < 0 || e.Population >= numPops) {
			return simerr.Config("demographic_events", "population %d out of range [0,%d)", e.Population, numPops)
		}
		if e.InitialSize != nil && *e.InitialSize <= 0 {
			return simerr.Config("demographic_events", "initial_size must be positive, got %v", *e.InitialSize)
		}
	case MigrationRateChange:
		if e.Rate < 0 || isNonFinite(e.Rate) {
			return simerr.Config("demographic_events", "migration rate must be non-negative and finite, got %v", e.Rate)
		}
		if e.MatrixI != AllOffDiagonal {
			if e.MatrixI < 0 || e.MatrixI >= numPops || e.MatrixJ < 0 || e.MatrixJ >= numPops {
				return simerr.Config("demographic_events", "matrix index (%d,%d) out of range", e.MatrixI, e.MatrixJ)
			}
			if e.MatrixI == e.MatrixJ {
				return simerr.Config("demographic_events", "matrix index (%d,%d) is a diagonal entry", e.MatrixI, e.MatrixJ)
			}
		}
	case MassMigration:
		if e.Source < 0 || e.Source >= numPops || e.Destination < 0 || e.Destination >= numPops {
			return simerr.Config("demographic_events", "source/destination out of range [0,%d)", numPops)
		}
		if e.Source == e.Destination {
			return simerr.Config("demographic_events", "source and destination must differ")
		}
		if e.Proportion < 0 || e.Proportion > 1 {
			return simerr.Config("demographic_events", "proportion must be in [0,1], got %v", e.Proportion)
		}
	default:
		return simerr.Config("demographic_events", "unknown event kind %d", e.Kind)
	}
	return nil
}

// Apply mutates m in place to reflect the event firing at e.Time.
// MassMigration is handled separately by the engine, since it moves
// lineages rather than model parameters.
func (e Event) Apply(m *Model) error {
	switch e.Kind {
	case PopulationParametersChange:
		apply := func(i int) {
			p := &m.Populations[i]
			if e.GrowthRate != nil {
				// Re-anchor so EffectiveSize stays continuous at the
				// moment the growth rate changes (spec §3).
				p.InitialSize = p.EffectiveSize(e.Time)
				p.TimeOfLastChange = e.Time
				p.GrowthRate = *e.GrowthRate
			}
			if e.InitialSize != nil {
				p.InitialSize = *e.InitialSize
				p.TimeOfLastChange = e.Time
				if e.GrowthRate == nil {
					p.GrowthRate = 0
				}
			}
		}
		if e.Population == AllPopulations {
			for i := range m.Populations {
				apply(i)
			}
		} else {
			apply(e.Population)
		}
	case MigrationRateChange:
		if e.MatrixI == AllOffDiagonal {
			for i := range m.Migration {
				for j := range m.Migration[i] {
					if i != j {
						m.Migration[i][j] = e.Rate
					}
				}
			}
		} else {
			m.Migration[e.MatrixI][e.MatrixJ] = e.Rate
		}
	case MassMigration:
		// No model parameters change; the engine moves lineages.
	default:
		return simerr.Internal("demography: unknown event kind %d during apply", e.Kind)
	}
	return nil
}

func isNonFinite(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }

// ---------------------------------------------------------------------------
// Event queue: a time-ordered min-heap with a stable tie-break on
// submission order (spec §4.4: "Events scheduled at identical times
// execute in the order they were submitted").
// ---------------------------------------------------------------------------

// Queue is a min-heap of Events ordered by (Time, Seq).
type Queue struct {
	items  eventHeap
	nextSeq int
}

// NewQueue builds a Queue from an initial event batch, validating none
// of them beyond the numPops-aware checks already applied by the
// caller's builder.
func NewQueue(events []Event) *Queue {
	q := &Queue{}
	for _, e := range events {
		q.Push(e)
	}
	return q
}

// Push adds an event, stamping it with the next submission sequence
// number if it doesn't already have one.
func (q *Queue) Push(e Event) {
	if e.Seq == 0 {
		q.nextSeq++
		e.Seq = q.nextSeq
	} else if e.Seq >= q.nextSeq {
		q.nextSeq = e.Seq + 1
	}
	heap.Push(&q.items, e)
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return q.items.Len() }

// Peek returns the earliest pending event without removing it, and
// whether the queue was non-empty.
func (q *Queue) Peek() (Event, bool) {
	if q.items.Len() == 0 {
		return Event{}, false
	}
	return q.items[0], true
}

// Pop removes and returns the earliest pending event.
func (q *Queue) Pop() (Event, bool) {
	if q.items.Len() == 0 {
		return Event{}, false
	}
	e := heap.Pop(&q.items).(Event)
	return e, true
}

type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
