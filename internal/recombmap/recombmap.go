// Package recombmap implements the piecewise-constant recombination rate
// map from spec §4.3: physical position -> cumulative genetic distance,
// and its inverse, both via binary search over a precomputed cumulative
// table. Positions/rates are kept as separate parallel slices (a
// structure-of-arrays layout) following the SoA convention the teacher
// repository uses for its own tick tables (router/ticksoa.go), which
// keeps the binary search over positions branch-predictor-friendly by
// not striding through an interleaved struct.
package recombmap

import (
	"math"
	"sort"

	"github.com/dp-rice/msprime-lambda/internal/simerr"
)

// Map is an immutable piecewise-constant recombination rate map over
// [0, L).
type Map struct {
	positions []float64 // positions[0]=0, positions[k]=L, strictly increasing
	rates     []float64 // rates[0..k-1], per-base per-generation rate within bin i
	cumulative []float64 // cumulative[i] = physical_to_genetic(positions[i])
}

// New validates and builds a Map from bin boundaries and per-bin rates.
// len(rates) must equal len(positions)-1. positions[0] must be 0 and
// strictly increasing; rates must be non-negative and finite.
func New(positions, rates []float64) (*Map, error) {
	if len(positions) < 2 {
		return nil, simerr.Config("recombination_map", "need at least two positions, got %d", len(positions))
	}
	if len(rates) != len(positions)-1 {
		return nil, simerr.Config("recombination_map", "rates length %d must be positions length-1 (%d)", len(rates), len(positions)-1)
	}
	if positions[0] != 0 {
		return nil, simerr.Config("recombination_map", "positions[0] must be 0, got %v", positions[0])
	}
	for i := 1; i < len(positions); i++ {
		if !(positions[i] > positions[i-1]) {
			return nil, simerr.Config("recombination_map", "positions must be strictly increasing at index %d", i)
		}
	}
	for i, r := range rates {
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, simerr.Config("recombination_map", "rate at bin %d must be finite and non-negative, got %v", i, r)
		}
	}

	m := &Map{
		positions: append([]float64(nil), positions...),
		rates:     append([]float64(nil), rates...),
	}
	m.cumulative = make([]float64, len(positions))
	m.cumulative[0] = 0
	for i := 1; i < len(positions); i++ {
		width := positions[i] - positions[i-1]
		m.cumulative[i] = m.cumulative[i-1] + width*rates[i-1]
	}
	return m, nil
}

// Uniform returns a Map with a single constant rate across [0, L), the
// common case exercised by spec §4.3's closed-form reduction check and
// by boundary scenarios 1/2.
func Uniform(length, rate float64) (*Map, error) {
	return New([]float64{0, length}, []float64{rate})
}

// Length returns L, the physical length of the mapped interval.
func (m *Map) Length() float64 { return m.positions[len(m.positions)-1] }

// TotalGeneticLength returns the cumulative genetic length of the whole
// map (spec §4.3: total_genetic_length).
func (m *Map) TotalGeneticLength() float64 { return m.cumulative[len(m.cumulative)-1] }

// PhysicalToGenetic returns the cumulative genetic distance up to
// physical position x, linear within the containing bin (spec §4.3).
func (m *Map) PhysicalToGenetic(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= m.Length() {
		return m.TotalGeneticLength()
	}
	// bin is the index i such that positions[i] <= x < positions[i+1]
	bin := sort.Search(len(m.positions), func(i int) bool { return m.positions[i] > x }) - 1
	offset := x - m.positions[bin]
	return m.cumulative[bin] + offset*m.rates[bin]
}

// GeneticToPhysical is the inverse of PhysicalToGenetic: given a
// cumulative genetic distance g, returns the physical position that
// maps to it via binary search over bin boundaries plus linear
// interpolation inside the bin (spec §4.3).
func (m *Map) GeneticToPhysical(g float64) float64 {
	if g <= 0 {
		return 0
	}
	total := m.TotalGeneticLength()
	if g >= total {
		return m.Length()
	}
	bin := sort.Search(len(m.cumulative), func(i int) bool { return m.cumulative[i] > g }) - 1
	remaining := g - m.cumulative[bin]
	if m.rates[bin] == 0 {
		// A zero-rate bin contributes nothing to genetic distance; any
		// physical position within it maps to the same g, so the left
		// edge is as good an inverse as any.
		return m.positions[bin]
	}
	return m.positions[bin] + remaining/m.rates[bin]
}
