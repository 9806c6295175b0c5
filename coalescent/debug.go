package coalescent

import (
	"math"
	"sort"

	"github.com/dp-rice/msprime-lambda/internal/demography"
)

// ScaledRecombinationRate converts a per-base, per-generation crossover
// rate r into the scaled rate convention Hudson's ms and the
// verification tooling this spec was distilled from both expect:
// 4*Ne*(m-1)*r for a genome of m sites (original_source/verification.py's
// get_scaled_recombination_rate).
func ScaledRecombinationRate(ne float64, numSites int, r float64) float64 {
	return 4 * ne * float64(numSites-1) * r
}

// Epoch is one interval of constant demographic parameters, as printed
// by the demography debugger (spec §8 boundary scenario 5).
type Epoch struct {
	StartTime   float64
	EndTime     float64 // +Inf for the final epoch
	Populations []demography.Population
	Migration   [][]float64
}

// DebugDemography replays cfg's demographic event queue without running
// any coalescence, returning the sequence of constant-parameter epochs.
// It is independent of the random stream and exists so a caller can
// check scheduled epoch boundaries against expectation before spending
// time on a full simulation.
func DebugDemography(cfg *Config) []Epoch {
	model := cloneModel(cfg.model)
	events := append([]demography.Event(nil), cfg.events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })

	var epochs []Epoch
	t := 0.0
	for _, ev := range events {
		epochs = append(epochs, snapshotEpoch(model, t, ev.Time))
		if ev.Kind != demography.MassMigration {
			_ = ev.Apply(model) // mass migration moves lineages, not model parameters
		}
		t = ev.Time
	}
	epochs = append(epochs, snapshotEpoch(model, t, math.Inf(1)))
	return epochs
}

func snapshotEpoch(model *demography.Model, start, end float64) Epoch {
	return Epoch{
		StartTime:   start,
		EndTime:     end,
		Populations: append([]demography.Population(nil), model.Populations...),
		Migration:   cloneMigration(model.Migration),
	}
}

func cloneMigration(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
