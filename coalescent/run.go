package coalescent

import (
	"github.com/dp-rice/msprime-lambda/internal/demography"
	"github.com/dp-rice/msprime-lambda/internal/engine"
	"github.com/dp-rice/msprime-lambda/internal/replicate"
	"github.com/dp-rice/msprime-lambda/internal/treeseq"
)

// Result is one replicate's outcome: its finished tree sequence plus
// the summary statistics spec §8's acceptance tests consume.
type Result struct {
	Trees *treeseq.Builder
	Stat  replicate.Stat
}

// Run executes cfg.NumReplicates independent replicates and returns
// each one's tree sequence. Replicates are independent engine instances
// with independent PRNG streams derived from cfg's seed (spec §5); this
// package parallelizes them across a worker pool via internal/replicate
// rather than running them strictly in sequence.
func Run(cfg *Config) ([]Result, error) {
	n := cfg.numReplicas
	workers := n
	const maxWorkers = 8
	if workers > maxWorkers {
		workers = maxWorkers
	}

	results := make([]Result, n)
	stats, err := replicate.Collect(n, workers, func(i int) (replicate.Stat, error) {
		trees, err := runOne(cfg, i)
		if err != nil {
			return replicate.Stat{}, err
		}
		stat := replicate.Stat{
			Index:          i,
			TMRCA:          rootTime(trees),
			NumBreakpoints: len(trees.Breakpoints()) - 1, // exclude the implicit 0 boundary
			NumTrees:       trees.NumTrees(),
		}
		results[i] = Result{Trees: trees, Stat: stat}
		return stat, nil
	})
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Stat = stats[i]
	}
	return results, nil
}

// runOne executes a single replicate with a seed deterministically
// derived from cfg.seed and its replicate index, so Run's worker
// scheduling order never affects which stream a given replicate draws
// from (spec §8 determinism property).
func runOne(cfg *Config, index int) (*treeseq.Builder, error) {
	seed := cfg.seed ^ (uint64(index+1) * 0x9E3779B97F4A7C15)
	events := append([]demography.Event(nil), cfg.events...)
	econf := engine.Config{
		SamplePopulations: cfg.samples,
		Demography:        cloneModel(cfg.model),
		Events:            events,
		RecombMap:         cfg.recombMap,
		RandomSeed:        seed,
		MaxEvents:         cfg.maxEvents,
	}
	sim, err := engine.New(econf, cfg.length)
	if err != nil {
		return nil, err
	}
	return sim.Run()
}

// cloneModel returns a deep-enough copy of m so concurrent replicates
// never share mutable demographic state (spec §5: "no cross-instance
// sharing").
func cloneModel(m *demography.Model) *demography.Model {
	pops := append([]demography.Population(nil), m.Populations...)
	migration := make([][]float64, len(m.Migration))
	for i, row := range m.Migration {
		migration[i] = append([]float64(nil), row...)
	}
	clone, _ := demography.NewModel(pops, migration)
	return clone
}

// rootTime returns the time of the last node the builder allocated,
// i.e. the final coalescence's time. For a no-recombination
// configuration with one population this is the tree's TMRCA (spec §8's
// single-locus TMRCA acceptance test); with recombination it is the
// time of whichever local tree finished last.
func rootTime(trees *treeseq.Builder) float64 {
	n := trees.NumNodes()
	if n == 0 {
		return 0
	}
	return trees.Node(int32(n - 1)).Time
}
