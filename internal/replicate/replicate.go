// Package replicate collects per-replicate summary statistics (spec §8:
// TMRCA and breakpoint counts feed the statistical acceptance tests)
// across worker goroutines at Monte Carlo scale. Segregating-site counts
// are not included: mutation generation is an external collaborator
// (spec §1 Non-goals), so this package only carries what the engine
// itself can compute from a finished tree sequence.
//
// Ring is a fixed-capacity single-producer/single-consumer ring buffer
// adapted from the teacher repository's ring24.Ring: the sequence-number
// slot-availability protocol, including its atomic load/store pairing
// on seq (the producer's release-store is what makes the consumer's
// subsequent read of stat well-defined under the Go memory model), is
// carried over unchanged. The payload shrinks from a 24-byte wire
// message to a Stat struct, and the OS-thread-pinning / CPU-affinity
// machinery (runtime.LockOSThread, setAffinity, cpuRelax) is dropped
// since replicate workers are ordinary goroutines scheduled by the Go
// runtime, not cores dedicated to one SPSC pair.
package replicate

import (
	"runtime"
	"sync/atomic"

	"github.com/dp-rice/msprime-lambda/internal/simerr"
)

// Stat is one replicate's summary (spec §8's acceptance-test inputs).
type Stat struct {
	Index          int
	TMRCA          float64
	NumBreakpoints int
	NumTrees       int
}

type slot struct {
	seq  atomic.Uint64
	stat Stat
}

// Ring is an SPSC ring buffer of Stat values. Capacity must be a power
// of two.
type Ring struct {
	buf  []slot
	mask uint64
	head uint64 // consumer read position
	tail uint64 // producer write position
}

// NewRing returns a ring with the given power-of-two capacity.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, simerr.Config("capacity", "must be a positive power of two, got %d", capacity)
	}
	r := &Ring{
		buf:  make([]slot, capacity),
		mask: uint64(capacity - 1),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r, nil
}

// Push writes one Stat, returning false if the ring is currently full.
// Safe for exactly one producer goroutine.
func (r *Ring) Push(s Stat) bool {
	pos := r.tail
	sl := &r.buf[pos&r.mask]
	if sl.seq.Load() != pos {
		return false // consumer hasn't freed this slot yet
	}
	sl.stat = s
	sl.seq.Store(pos + 1) // release: publishes stat to the consumer
	r.tail = pos + 1
	return true
}

// Pop reads one Stat, returning false if the ring is currently empty.
// Safe for exactly one consumer goroutine.
func (r *Ring) Pop() (Stat, bool) {
	pos := r.head
	sl := &r.buf[pos&r.mask]
	if sl.seq.Load() != pos+1 { // acquire: pairs with Push's release store
		return Stat{}, false // producer hasn't written this slot yet
	}
	s := sl.stat
	sl.seq.Store(pos + uint64(len(r.buf)))
	r.head = pos + 1
	return s, true
}

// Len returns the number of unread entries currently buffered.
func (r *Ring) Len() int { return int(r.tail - r.head) }

// ringCapacity is the per-worker buffer depth. Each replicate produces
// exactly one Stat, so a shallow ring is enough to decouple a worker
// that finishes early from a consumer still draining its sibling.
const ringCapacity = 64

// Collect runs numReplicates invocations of run across numWorkers
// goroutines and returns their Stats in replicate-index order. Each
// worker owns one dedicated Ring as its sole producer (the SPSC
// contract Ring requires); a single consumer goroutine drains every
// worker's ring round-robin until all replicates have landed, the same
// one-consumer-per-set-of-pinned-producers shape as the teacher
// repository's per-core consumer loop, generalized from one ring to a
// worker pool's worth.
func Collect(numReplicates, numWorkers int, run func(index int) (Stat, error)) ([]Stat, error) {
	if numReplicates <= 0 {
		return nil, nil
	}
	if numWorkers <= 0 || numWorkers > numReplicates {
		numWorkers = numReplicates
	}

	rings := make([]*Ring, numWorkers)
	for i := range rings {
		r, err := NewRing(ringCapacity)
		if err != nil {
			return nil, err
		}
		rings[i] = r
	}

	errs := make([]error, numWorkers)
	done := make(chan int, numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(w int) {
			defer func() { done <- w }()
			for i := w; i < numReplicates; i += numWorkers {
				s, err := run(i)
				if err != nil {
					errs[w] = err
					return
				}
				for !rings[w].Push(s) {
					// consumer is behind; with ringCapacity > in-flight
					// replicates per worker this should not spin long.
					// Yield instead of busy-spinning outright, since
					// unlike the teacher's dedicated-core consumers this
					// worker shares its core with everything else the Go
					// runtime schedules.
					runtime.Gosched()
				}
			}
		}(w)
	}

	out := make([]Stat, numReplicates)
	remaining := numReplicates
	finished := 0
	for remaining > 0 && finished < numWorkers {
		for w := 0; w < numWorkers; w++ {
			for {
				s, ok := rings[w].Pop()
				if !ok {
					break
				}
				out[s.Index] = s
				remaining--
			}
		}
		select {
		case <-done:
			finished++
		default:
		}
	}
	// Drain anything pushed between a worker's last Pop and its done signal.
	for w := 0; w < numWorkers; w++ {
		for {
			s, ok := rings[w].Pop()
			if !ok {
				break
			}
			out[s.Index] = s
			remaining--
		}
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
