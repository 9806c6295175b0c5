// Package debug provides zero-allocation, cold-path diagnostic logging for
// the simulation engine. It is the direct generalization of the teacher
// repository's ISR-aligned debug logger: avoid fmt.Sprintf on paths that
// run once per replicate or once per invariant check, never touch it from
// the Fenwick/segment hot loop.
package debug

import "github.com/dp-rice/msprime-lambda/internal/utils"

// DropMessage logs a cold-path diagnostic: demographic-event execution,
// cancellation, replicate-boundary notices.
func DropMessage(prefix, message string) {
	utils.PrintWarning(prefix + ": " + message + "\n")
}

// DropError logs an error on a cold path — config rejection, invariant
// violation, allocator exhaustion.
func DropError(prefix string, err error) {
	if err != nil {
		utils.PrintWarning(prefix + ": " + err.Error() + "\n")
		return
	}
	utils.PrintWarning(prefix + "\n")
}
