// Package coalescent is the programmatic builder spec §6 requires: it
// validates a demographic/genomic configuration eagerly (§7's "errors
// detected... before simulation begins" policy), then runs one or more
// independent replicates of the engine in internal/engine, returning the
// coalescence-record stream as a finalized tree sequence.
//
// Validation here follows the pack's validate-then-build convention
// (AleutianLocal's pkg/validation, Sumatoshi-tech-codefang's pkg/config):
// a Builder accumulates fields, Build eagerly checks every one, and only
// a fully valid Config can reach Run.
package coalescent

import (
	"github.com/dp-rice/msprime-lambda/internal/demography"
	"github.com/dp-rice/msprime-lambda/internal/recombmap"
	"github.com/dp-rice/msprime-lambda/internal/simerr"
)

// Re-exported demographic-event vocabulary (spec §6) so callers never
// need to import internal/demography directly.
type (
	Event     = demography.Event
	EventKind = demography.EventKind
)

const (
	PopulationParametersChange = demography.PopulationParametersChange
	MigrationRateChange        = demography.MigrationRateChange
	MassMigration              = demography.MassMigration
	AllPopulations             = demography.AllPopulations
	AllOffDiagonal             = demography.AllOffDiagonal
)

// PopulationConfig describes one population's sample and demographic
// starting state (spec §6: population_configurations).
type PopulationConfig struct {
	SampleSize  int
	InitialSize float64 // 0 means "use Config.Ne"
	GrowthRate  float64
}

// Config is the fully validated input to Run. Build it with Builder;
// the zero Config is not valid.
type Config struct {
	populations []PopulationConfig
	migration   [][]float64
	events      []demography.Event
	recombMap   *recombmap.Map
	length      float64
	ne          float64
	seed        uint64
	numReplicas int
	maxEvents   int

	model   *demography.Model
	samples []int
}

// Builder accumulates configuration for Build to validate eagerly.
type Builder struct {
	populations []PopulationConfig
	migration   [][]float64
	events      []demography.Event
	recombMap   *recombmap.Map
	uniformRate *float64
	length      float64
	ne          float64
	seed        uint64
	numReplicas int
	maxEvents   int
}

// NewBuilder returns an empty Builder. NumReplicates defaults to 1.
func NewBuilder() *Builder {
	return &Builder{ne: 1, numReplicas: 1}
}

// AddPopulation appends one population_configurations entry.
func (b *Builder) AddPopulation(cfg PopulationConfig) *Builder {
	b.populations = append(b.populations, cfg)
	return b
}

// SetMigrationMatrix sets the full d×d migration matrix.
func (b *Builder) SetMigrationMatrix(m [][]float64) *Builder {
	b.migration = m
	return b
}

// AddEvent schedules one demographic event.
func (b *Builder) AddEvent(e Event) *Builder {
	b.events = append(b.events, e)
	return b
}

// SetRecombinationMap installs a pre-built piecewise-constant map.
func (b *Builder) SetRecombinationMap(m *recombmap.Map) *Builder {
	b.recombMap = m
	return b
}

// SetUniformRecombination is shorthand for a single-rate map over the
// genome once Length is known; it is resolved at Build time.
func (b *Builder) SetUniformRecombination(rate float64) *Builder {
	b.uniformRate = &rate
	return b
}

// SetLength sets the genome length L.
func (b *Builder) SetLength(length float64) *Builder {
	b.length = length
	return b
}

// SetNe sets the default population-size scaler used when a
// PopulationConfig omits InitialSize (spec §6: Ne).
func (b *Builder) SetNe(ne float64) *Builder {
	b.ne = ne
	return b
}

// SetRandomSeed sets the master seed; each replicate derives its own
// stream deterministically from it.
func (b *Builder) SetRandomSeed(seed uint64) *Builder {
	b.seed = seed
	return b
}

// SetNumReplicates sets how many independent replicates Run executes.
func (b *Builder) SetNumReplicates(n int) *Builder {
	b.numReplicas = n
	return b
}

// SetMaxEvents overrides the step-budget guard (spec §8 boundary
// scenario 4) for configurations that can fail to terminate under
// coalescence alone.
func (b *Builder) SetMaxEvents(n int) *Builder {
	b.maxEvents = n
	return b
}

// Build validates every field and returns a ready-to-run Config, or the
// first validation error encountered (spec §7: "configuration errors
// are detected and reported before simulation begins").
func (b *Builder) Build() (*Config, error) {
	if len(b.populations) == 0 {
		return nil, simerr.Config("population_configurations", "at least one population is required")
	}
	if b.length <= 0 {
		return nil, simerr.Config("length", "genome length must be positive, got %v", b.length)
	}
	if b.ne <= 0 {
		return nil, simerr.Config("Ne", "default population size must be positive, got %v", b.ne)
	}
	totalSamples := 0
	for i, p := range b.populations {
		if p.SampleSize < 0 {
			return nil, simerr.Config("population_configurations", "population %d sample_size must be non-negative, got %d", i, p.SampleSize)
		}
		totalSamples += p.SampleSize
	}
	if totalSamples == 0 {
		return nil, simerr.Config("sample_size", "at least one sample is required across all populations")
	}

	numPop := len(b.populations)
	migration := b.migration
	if migration == nil {
		migration = make([][]float64, numPop)
		for i := range migration {
			migration[i] = make([]float64, numPop)
		}
	}

	pops := make([]demography.Population, numPop)
	samples := make([]int, 0, totalSamples)
	for i, p := range b.populations {
		initial := p.InitialSize
		if initial == 0 {
			initial = b.ne
		}
		pops[i] = demography.Population{InitialSize: initial, GrowthRate: p.GrowthRate}
		for s := 0; s < p.SampleSize; s++ {
			samples = append(samples, i)
		}
	}

	model, err := demography.NewModel(pops, migration)
	if err != nil {
		return nil, err
	}

	sortedEvents := append([]demography.Event(nil), b.events...)
	for i, e := range sortedEvents {
		if err := e.Validate(numPop); err != nil {
			return nil, simerr.Config("demographic_events", "event %d: %v", i, err)
		}
	}

	recombMap := b.recombMap
	if recombMap == nil {
		rate := 0.0
		if b.uniformRate != nil {
			rate = *b.uniformRate
		}
		recombMap, err = recombmap.Uniform(b.length, rate)
		if err != nil {
			return nil, err
		}
	} else if recombMap.Length() != b.length {
		return nil, simerr.Config("recombination_map", "map length %v does not match configured length %v", recombMap.Length(), b.length)
	}

	if b.numReplicas <= 0 {
		return nil, simerr.Config("num_replicates", "must be positive, got %d", b.numReplicas)
	}

	return &Config{
		populations: append([]PopulationConfig(nil), b.populations...),
		migration:   migration,
		events:      sortedEvents,
		recombMap:   recombMap,
		length:      b.length,
		ne:          b.ne,
		seed:        b.seed,
		numReplicas: b.numReplicas,
		maxEvents:   b.maxEvents,
		model:       model,
		samples:     samples,
	}, nil
}

// NumReplicates returns how many replicates Run will execute.
func (c *Config) NumReplicates() int { return c.numReplicas }

// Length returns the configured genome length.
func (c *Config) Length() float64 { return c.length }
