// Package objectheap is a fixed-size-block arena allocator: O(1) alloc and
// free via an intrusive freelist, no per-object call into the Go heap.
//
// It generalizes the teacher repository's quantumqueue64.QuantumQueue64
// arena (a fixed [CapItems]node array chained into a freelist through
// each node's own next field) and PooledQuantumQueue's externally-grown
// page strategy into a generic, growable allocator for segment and
// AVL-node blocks (spec §4.1). Where the teacher's arena was a single
// fixed-size array sized for a bounded tick-queue, this one grows by
// appending a new page and re-threading the freelist through it, since
// the number of concurrent ancestral segments is not known up front and
// shrinks unpredictably as coalescence proceeds (spec §5).
package objectheap

import "github.com/dp-rice/msprime-lambda/internal/simerr"

// Ref is an opaque arena slot index. RefNil (-1) never names a live
// block; the zero Ref names slot 0.
type Ref int32

// RefNil is the freelist terminator and the null-reference sentinel.
const RefNil Ref = -1

const defaultPageSize = 4096

// Heap allocates fixed-size T blocks from geometrically-grown pages.
// Free blocks are linked through a caller-supplied accessor so the same
// allocator works for any block type with a spare int32 field to use as
// the intrusive next-pointer (segment.block and avlindex.node both
// reserve one).
type Heap[T any] struct {
	pages     [][]T
	freeHead  Ref
	live      int
	next      func(*T) *Ref // accessor for the block's freelist-link field
	pageSize  int
	maxBlocks int // 0 means unbounded
}

// New creates a Heap whose blocks chain through the field nextLink
// returns a pointer to. maxBlocks caps total capacity (0 = unbounded);
// spec §4.1 requires alloc to fail cleanly with OutOfMemory rather than
// partially succeed once a cap is reached.
func New[T any](nextLink func(*T) *Ref, maxBlocks int) *Heap[T] {
	return &Heap[T]{
		freeHead:  RefNil,
		next:      nextLink,
		pageSize:  defaultPageSize,
		maxBlocks: maxBlocks,
	}
}

// Cap returns total block capacity across all allocated pages.
func (h *Heap[T]) Cap() int {
	n := 0
	for _, p := range h.pages {
		n += len(p)
	}
	return n
}

// Len returns the number of blocks currently allocated (not on the
// freelist).
func (h *Heap[T]) Len() int { return h.live }

// Get returns a pointer to the block named by ref. Callers must treat the
// pointer as invalid after Free(ref).
func (h *Heap[T]) Get(ref Ref) *T {
	pageIdx, slotIdx := h.split(ref)
	return &h.pages[pageIdx][slotIdx]
}

// Alloc returns a zeroed block and its Ref, growing the arena by one page
// if the freelist is empty. Fails with OutOfMemory only once maxBlocks is
// set and reached — growth is otherwise unbounded, matching the "no
// retries; no partial runs" failure semantics of spec §4.4/§7: a caller
// that gets an error here has allocated nothing.
func (h *Heap[T]) Alloc() (Ref, error) {
	if h.freeHead == RefNil {
		if err := h.grow(); err != nil {
			return RefNil, err
		}
	}
	ref := h.freeHead
	blk := h.Get(ref)
	h.freeHead = *h.next(blk)
	var zero T
	*blk = zero
	*h.next(blk) = RefNil
	h.live++
	return ref, nil
}

// Free returns a block to the freelist. Freed blocks never participate in
// traversals (spec §4.1 invariant); callers must drop every reference to
// ref before calling Free.
func (h *Heap[T]) Free(ref Ref) {
	blk := h.Get(ref)
	*h.next(blk) = h.freeHead
	h.freeHead = ref
	h.live--
}

func (h *Heap[T]) grow() error {
	if h.maxBlocks > 0 && h.Cap()+h.pageSize > h.maxBlocks {
		remaining := h.maxBlocks - h.Cap()
		if remaining <= 0 {
			return simerr.OutOfMemory("object heap exhausted: %d blocks in use, cap %d", h.live, h.maxBlocks)
		}
		return h.growBy(remaining)
	}
	// Geometric growth: double the page size each time, same rationale
	// as the teacher's multi-page pooled arenas (PooledQuantumQueue),
	// amortizing the cost of re-threading the freelist over O(log n)
	// growth events instead of one per allocation.
	size := h.pageSize
	if len(h.pages) > 0 {
		size = len(h.pages[len(h.pages)-1]) * 2
	}
	return h.growBy(size)
}

func (h *Heap[T]) growBy(size int) error {
	if size <= 0 {
		return simerr.OutOfMemory("object heap exhausted: %d blocks in use", h.live)
	}
	base := Ref(h.Cap())
	page := make([]T, size)
	for i := range page {
		ref := base + Ref(i)
		var linkTo Ref
		if i == len(page)-1 {
			linkTo = h.freeHead
		} else {
			linkTo = ref + 1
		}
		*h.next(&page[i]) = linkTo
	}
	h.pages = append(h.pages, page)
	h.freeHead = base
	return nil
}

func (h *Heap[T]) split(ref Ref) (pageIdx, slotIdx int) {
	r := int(ref)
	for i, p := range h.pages {
		if r < len(p) {
			return i, r
		}
		r -= len(p)
	}
	panic("objectheap: invalid ref")
}
