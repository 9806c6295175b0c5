package engine

import (
	"testing"

	"github.com/dp-rice/msprime-lambda/internal/demography"
	"github.com/dp-rice/msprime-lambda/internal/recombmap"
	"github.com/dp-rice/msprime-lambda/internal/simerr"
	"github.com/dp-rice/msprime-lambda/internal/treeseq"
	"github.com/stretchr/testify/require"
)

func singlePopModel(t *testing.T, size float64) *demography.Model {
	t.Helper()
	m, err := demography.NewModel([]demography.Population{{InitialSize: size}}, [][]float64{{0}})
	require.NoError(t, err)
	return m
}

func TestTwoSampleNoRecombinationProducesOneRecordCoveringGenome(t *testing.T) {
	t.Parallel()
	rm, err := recombmap.Uniform(1000, 0)
	require.NoError(t, err)
	cfg := Config{
		SamplePopulations: []int{0, 0},
		Demography:        singlePopModel(t, 1),
		RecombMap:         rm,
		RandomSeed:        1,
	}
	sim, err := New(cfg, 1000)
	require.NoError(t, err)
	tree, err := sim.Run()
	require.NoError(t, err)
	require.Equal(t, 1, tree.NumTrees())
	trees := tree.Trees()
	require.Len(t, trees, 1)
	require.Equal(t, 0.0, trees[0].Left)
	require.Equal(t, 1000.0, trees[0].Right)
	require.True(t, trees[0].Parent[0] >= 0 && trees[0].Parent[0] == trees[0].Parent[1],
		"both samples must share the same immediate parent")
}

func TestManySamplesCoalesceToSingleRoot(t *testing.T) {
	t.Parallel()
	rm, err := recombmap.Uniform(1000, 0)
	require.NoError(t, err)
	pops := make([]int, 10)
	cfg := Config{
		SamplePopulations: pops,
		Demography:        singlePopModel(t, 1),
		RecombMap:         rm,
		RandomSeed:        2,
	}
	sim, err := New(cfg, 1000)
	require.NoError(t, err)
	tree, err := sim.Run()
	require.NoError(t, err)
	require.Equal(t, 1, tree.NumTrees())
	trees := tree.Trees()
	var roots int
	for _, p := range trees[0].Parent {
		if p == -1 {
			roots++
		}
	}
	require.Equal(t, 1, roots, "ten samples under one population must coalesce to exactly one root")
}

func TestHighRecombinationProducesMultipleBreakpoints(t *testing.T) {
	t.Parallel()
	rm, err := recombmap.Uniform(1000, 0.05)
	require.NoError(t, err)
	pops := make([]int, 6)
	cfg := Config{
		SamplePopulations: pops,
		Demography:        singlePopModel(t, 1),
		RecombMap:         rm,
		RandomSeed:        3,
	}
	sim, err := New(cfg, 1000)
	require.NoError(t, err)
	tree, err := sim.Run()
	require.NoError(t, err)
	require.Greater(t, tree.NumTrees(), 1, "a high recombination rate should split the genome into several local trees")
}

func TestBottleneckLowersTMRCARelativeToConstantSize(t *testing.T) {
	t.Parallel()
	rm, err := recombmap.Uniform(100, 0)
	require.NoError(t, err)
	pops := make([]int, 8)

	runOnce := func(seed uint64, events []demography.Event) float64 {
		cfg := Config{
			SamplePopulations: pops,
			Demography:        singlePopModel(t, 1000),
			Events:            events,
			RecombMap:         rm,
			RandomSeed:        seed,
		}
		sim, err := New(cfg, 100)
		require.NoError(t, err)
		tree, err := sim.Run()
		require.NoError(t, err)
		var maxTime float64
		for id := int32(0); id < int32(tree.NumNodes()); id++ {
			if node := tree.Node(id); node.Time > maxTime {
				maxTime = node.Time
			}
		}
		return maxTime
	}

	small := 1.0
	bottleneckTMRCA := runOnce(11, []demography.Event{
		{Time: 0.01, Kind: demography.PopulationParametersChange, Population: demography.AllPopulations, InitialSize: &small},
	})
	baselineTMRCA := runOnce(11, nil)
	require.Less(t, bottleneckTMRCA, baselineTMRCA,
		"an early size reduction should accelerate coalescence relative to the unmodified large constant population")
}

func TestIsolatedDemesWithNoMigrationAndNoRemainingEventsReturnsInternalError(t *testing.T) {
	t.Parallel()
	rm, err := recombmap.Uniform(10, 0)
	require.NoError(t, err)
	model, err := demography.NewModel(
		[]demography.Population{{InitialSize: 1}, {InitialSize: 1}},
		[][]float64{{0, 0}, {0, 0}},
	)
	require.NoError(t, err)
	cfg := Config{
		SamplePopulations: []int{0, 1}, // one lineage per deme, never able to coalesce or migrate
		Demography:        model,
		RecombMap:         rm,
		RandomSeed:        4,
	}
	sim, err := New(cfg, 10)
	require.NoError(t, err)
	_, err = sim.Run()
	require.Error(t, err)
	require.True(t, simerr.Is(err, simerr.KindInternal))
}

func TestSameSeedProducesBitIdenticalRecordStream(t *testing.T) {
	t.Parallel()
	build := func() *Config {
		rm, err := recombmap.Uniform(500, 0.01)
		require.NoError(t, err)
		return &Config{
			SamplePopulations: []int{0, 0, 0, 0, 0, 0},
			Demography:        singlePopModel(t, 5),
			RecombMap:         rm,
			RandomSeed:        123456,
		}
	}

	runTrees := func() []treeseq.Interval {
		cfg := *build()
		sim, err := New(cfg, 500)
		require.NoError(t, err)
		tree, err := sim.Run()
		require.NoError(t, err)
		return tree.Trees()
	}

	a := runTrees()
	b := runTrees()
	require.Equal(t, len(a), len(b))
	for i := range a {
		require.Equal(t, a[i].Left, b[i].Left)
		require.Equal(t, a[i].Right, b[i].Right)
		require.Equal(t, a[i].Parent, b[i].Parent)
	}
}

func TestMaxEventsBudgetIsEnforced(t *testing.T) {
	t.Parallel()
	rm, err := recombmap.Uniform(10, 0)
	require.NoError(t, err)
	cfg := Config{
		SamplePopulations: []int{0, 1},
		Demography: func() *demography.Model {
			m, err := demography.NewModel(
				[]demography.Population{{InitialSize: 1}, {InitialSize: 1}},
				[][]float64{{0, 0}, {0, 0}},
			)
			require.NoError(t, err)
			return m
		}(),
		Events: []demography.Event{
			{Time: 1e9, Kind: demography.MigrationRateChange, MatrixI: demography.AllOffDiagonal, Rate: 0},
		},
		RecombMap:  rm,
		RandomSeed: 5,
		MaxEvents:  1,
	}
	sim, err := New(cfg, 10)
	require.NoError(t, err)
	_, err = sim.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "step budget")
}

func TestNewRejectsEmptySamples(t *testing.T) {
	t.Parallel()
	rm, _ := recombmap.Uniform(10, 0)
	_, err := New(Config{Demography: singlePopModel(t, 1), RecombMap: rm}, 10)
	require.Error(t, err)
}

func TestNewRejectsOutOfRangeSamplePopulation(t *testing.T) {
	t.Parallel()
	rm, _ := recombmap.Uniform(10, 0)
	_, err := New(Config{
		SamplePopulations: []int{0, 5},
		Demography:        singlePopModel(t, 1),
		RecombMap:         rm,
	}, 10)
	require.Error(t, err)
}
