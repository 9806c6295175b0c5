// Command coalescent is a thin ms-flavored front-end over the
// coalescent package (spec §6). It exists to prove the builder accepts
// a flag set shaped like Hudson's ms, not as the simulator's primary
// interface: programmatic callers should use coalescent.Builder
// directly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dp-rice/msprime-lambda/cmd/coalescent/commands"
)

func main() {
	root := &cobra.Command{
		Use:           "coalescent",
		Short:         "Coalescent-with-recombination genealogy simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(commands.NewSimulateCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
