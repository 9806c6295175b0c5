// Package commands implements the coalescent CLI's subcommands.
package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dp-rice/msprime-lambda/coalescent"
)

// msArgs holds the raw values parsed from an ms-shaped argument list,
// before any of them are handed to a coalescent.Builder.
type msArgs struct {
	nsam  int
	nreps int

	haveI        bool
	popSizes     []int
	migRate      float64
	haveMigRate  bool

	haveG bool
	alpha float64

	haveR  bool
	rho    float64
	nsites int

	ne float64

	events []coalescent.Event

	haveSeed bool
	seed     uint64
}

// NewSimulateCommand returns the "simulate" subcommand, a deliberately
// thin front-end that accepts an ms-shaped argument list (spec §6: "a
// command-line front-end emulates an older simulator's flags") and
// drives coalescent.Builder with it. It is flag parsing in the oldest
// sense: positional sample/replicate counts followed by a run of
// "-flag value..." groups, which does not fit pflag's getopt model, so
// flag parsing is disabled here and the whole argument list is walked
// by hand, the same way ms itself reads argv.
func NewSimulateCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "simulate nsam nreps [-r rho nsites] [-G alpha] [-I npop n1 .. [m]] [-eN t x] [-eG t alpha] [-es t i p] [-ema t npop m11 .. m1n ..] [-seed n]",
		Short:              "Run coalescent replicates from an ms-style argument list",
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.OutOrStdout(), args, 1)
		},
	}
}

func runSimulate(w io.Writer, args []string, ne float64) error {
	parsed, err := parseMsArgs(args, ne)
	if err != nil {
		return err
	}

	builder := coalescent.NewBuilder().
		SetNe(parsed.ne).
		SetNumReplicates(parsed.nreps)

	if parsed.haveSeed {
		builder.SetRandomSeed(parsed.seed)
	}

	length := 2.0 // ms's default "infinite sites on [0,1)" convention has no physical length; without -r the recombination rate is 0, so this only sizes the single tree's interval
	if parsed.haveR {
		length = float64(parsed.nsites)
		r := parsed.rho / (4 * parsed.ne * float64(parsed.nsites-1))
		builder.SetUniformRecombination(r)
	}
	builder.SetLength(length)

	numPop := 1
	sizes := []int{parsed.nsam}
	if parsed.haveI {
		numPop = len(parsed.popSizes)
		sizes = parsed.popSizes
	}
	for _, n := range sizes {
		cfg := coalescent.PopulationConfig{SampleSize: n}
		if parsed.haveG {
			cfg.GrowthRate = parsed.alpha
		}
		builder.AddPopulation(cfg)
	}
	if parsed.haveI && parsed.haveMigRate && numPop > 1 {
		m := make([][]float64, numPop)
		for i := range m {
			m[i] = make([]float64, numPop)
			for j := range m[i] {
				if i != j {
					m[i][j] = parsed.migRate / float64(numPop-1)
				}
			}
		}
		builder.SetMigrationMatrix(m)
	}

	for _, e := range parsed.events {
		builder.AddEvent(e)
	}

	cfg, err := builder.Build()
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	results, err := coalescent.Run(cfg)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	for _, r := range results {
		fmt.Fprintf(w, "replicate %d: tmrca=%v breakpoints=%d trees=%d\n", r.Stat.Index, r.Stat.TMRCA, r.Stat.NumBreakpoints, r.Stat.NumTrees)
	}
	return nil
}

func parseMsArgs(args []string, ne float64) (msArgs, error) {
	var p msArgs
	p.ne = ne
	if ne == 0 {
		p.ne = 1
	}

	if len(args) < 2 {
		return p, fmt.Errorf("simulate: expected nsam nreps [flags...]")
	}
	var err error
	if p.nsam, err = strconv.Atoi(args[0]); err != nil || p.nsam <= 0 {
		return p, fmt.Errorf("simulate: nsam must be a positive integer, got %q", args[0])
	}
	if p.nreps, err = strconv.Atoi(args[1]); err != nil || p.nreps <= 0 {
		return p, fmt.Errorf("simulate: nreps must be a positive integer, got %q", args[1])
	}

	i := 2
	need := func(n int) error {
		if i+n >= len(args) {
			return fmt.Errorf("simulate: flag %q requires %d argument(s)", args[i], n)
		}
		return nil
	}
	atof := func(s string) float64 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	atoi := func(s string) int {
		v, _ := strconv.Atoi(s)
		return v
	}

	for i < len(args) {
		switch args[i] {
		case "-t":
			if err := need(1); err != nil {
				return p, err
			}
			i += 2 // theta accepted and discarded: mutation generation is out of scope
		case "-r":
			if err := need(2); err != nil {
				return p, err
			}
			p.haveR = true
			p.rho = atof(args[i+1])
			p.nsites = atoi(args[i+2])
			if p.nsites < 2 {
				return p, fmt.Errorf("simulate: -r nsites must be >= 2, got %d", p.nsites)
			}
			i += 3
		case "-G":
			if err := need(1); err != nil {
				return p, err
			}
			p.haveG = true
			p.alpha = atof(args[i+1])
			i += 2
		case "-I":
			if err := need(1); err != nil {
				return p, err
			}
			npop := atoi(args[i+1])
			if npop <= 0 {
				return p, fmt.Errorf("simulate: -I npop must be positive, got %d", npop)
			}
			if err := need(1 + npop); err != nil {
				return p, err
			}
			p.haveI = true
			p.popSizes = make([]int, npop)
			for j := 0; j < npop; j++ {
				p.popSizes[j] = atoi(args[i+2+j])
			}
			i += 2 + npop
			if i < len(args) && !isFlag(args[i]) {
				p.haveMigRate = true
				p.migRate = atof(args[i])
				i++
			}
		case "-eN":
			if err := need(2); err != nil {
				return p, err
			}
			t := atof(args[i+1])
			x := atof(args[i+2]) * p.ne
			p.events = append(p.events, coalescent.Event{
				Time: t, Kind: coalescent.PopulationParametersChange,
				Population: coalescent.AllPopulations, InitialSize: &x,
			})
			i += 3
		case "-eG":
			if err := need(2); err != nil {
				return p, err
			}
			t := atof(args[i+1])
			alpha := atof(args[i+2])
			p.events = append(p.events, coalescent.Event{
				Time: t, Kind: coalescent.PopulationParametersChange,
				Population: coalescent.AllPopulations, GrowthRate: &alpha,
			})
			i += 3
		case "-es":
			// ms splits population i into itself and a new deme at time t,
			// keeping each lineage in i with probability p. This shim has
			// no notion of creating a population mid-run, so it
			// approximates the split as a mass migration of the
			// complementary proportion into the next configured
			// population, which is faithful only when exactly two
			// populations are configured.
			if err := need(3); err != nil {
				return p, err
			}
			t := atof(args[i+1])
			src := atoi(args[i+2])
			prop := atof(args[i+3])
			i += 4
			numPop := 1
			if p.haveI {
				numPop = len(p.popSizes)
			}
			if numPop > 1 {
				dst := (src + 1) % numPop
				p.events = append(p.events, coalescent.Event{
					Time: t, Kind: coalescent.MassMigration,
					Source: src, Destination: dst, Proportion: 1 - prop,
				})
			}
		case "-ema":
			if err := need(2); err != nil {
				return p, err
			}
			t := atof(args[i+1])
			npop := atoi(args[i+2])
			if err := need(2 + npop*npop); err != nil {
				return p, err
			}
			for r := 0; r < npop; r++ {
				for c := 0; c < npop; c++ {
					if r == c {
						continue
					}
					rate := atof(args[i+3+r*npop+c])
					p.events = append(p.events, coalescent.Event{
						Time: t, Kind: coalescent.MigrationRateChange,
						MatrixI: r, MatrixJ: c, Rate: rate,
					})
				}
			}
			i += 3 + npop*npop
		case "-seed":
			if err := need(1); err != nil {
				return p, err
			}
			v, _ := strconv.ParseUint(args[i+1], 10, 64)
			p.haveSeed = true
			p.seed = v
			i += 2
		default:
			return p, fmt.Errorf("simulate: unrecognized flag %q", args[i])
		}
	}
	return p, nil
}

func isFlag(s string) bool {
	return len(s) > 0 && s[0] == '-' && (len(s) < 2 || s[1] < '0' || s[1] > '9')
}
