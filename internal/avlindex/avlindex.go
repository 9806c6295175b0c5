// Package avlindex implements the per-population AVL index from spec
// §3/§4.4: a balanced BST keyed by a lineage's head-segment left
// endpoint, augmented with subtree sizes so a lineage can be drawn
// uniformly at random "by rank" in O(log n) — required by the engine's
// coalescence step ("draw two distinct lineages uniformly at random from
// the AVL (by rank)") and its migration step ("remove one uniformly
// chosen lineage from src's AVL").
//
// Grounded on the balanced-BST-with-order-statistics idiom in the
// retrieval pack (other_examples: ajwerner-btree, TrevorS-hdbscan's
// spatial_tree.go, Seb-MCaw-File-Deduplicator's binary_tree.go), adapted
// from string/point keys to the float64 segment-boundary keys this
// engine needs, and backed by objectheap rather than the Go heap so
// lineage churn during coalescence doesn't generate GC pressure, in
// keeping with the teacher repository's arena-first style.
package avlindex

import "github.com/dp-rice/msprime-lambda/internal/objectheap"

// Ref names a node in an Index. objectheap.RefNil (exported here as
// Nil) marks "no node".
type Ref = objectheap.Ref

// Nil is the null node reference.
const Nil Ref = objectheap.RefNil

type node[V any] struct {
	key                 float64
	val                 V
	left, right, parent Ref
	height              int8
	size                int32
	freeLink            Ref // objectheap intrusive freelist link
}

// Index is one population's AVL index of lineage heads, keyed by
// head.left. Duplicate keys are permitted (two lineages may share a
// left boundary); ties descend to the right subtree on insert.
type Index[V any] struct {
	heap *objectheap.Heap[node[V]]
	root Ref
}

// New returns an empty index.
func New[V any]() *Index[V] {
	return &Index[V]{
		heap: objectheap.New(func(n *node[V]) *Ref { return &n.freeLink }, 0),
		root: Nil,
	}
}

// Size returns the number of lineages currently indexed (k_p in spec
// §4.4's hazard-rate formulas).
func (idx *Index[V]) Size() int {
	if idx.root == Nil {
		return 0
	}
	return int(idx.heap.Get(idx.root).size)
}

// Key returns the key stored at ref.
func (idx *Index[V]) Key(ref Ref) float64 { return idx.heap.Get(ref).key }

// Value returns the value stored at ref.
func (idx *Index[V]) Value(ref Ref) V { return idx.heap.Get(ref).val }

// SetValue overwrites the value stored at ref without touching tree
// structure (used when a lineage's segment list changes but its key
// does not).
func (idx *Index[V]) SetValue(ref Ref, v V) { idx.heap.Get(ref).val = v }

// Insert adds (key, val) and returns its node reference.
func (idx *Index[V]) Insert(key float64, val V) (Ref, error) {
	ref, err := idx.heap.Alloc()
	if err != nil {
		return Nil, err
	}
	n := idx.heap.Get(ref)
	n.key, n.val = key, val
	n.left, n.right, n.parent = Nil, Nil, Nil
	n.height, n.size = 1, 1

	if idx.root == Nil {
		idx.root = ref
		return ref, nil
	}
	cur := idx.root
	for {
		cn := idx.heap.Get(cur)
		if key < cn.key {
			if cn.left == Nil {
				cn.left = ref
				n.parent = cur
				break
			}
			cur = cn.left
		} else {
			if cn.right == Nil {
				cn.right = ref
				n.parent = cur
				break
			}
			cur = cn.right
		}
	}
	idx.retraceInsert(ref)
	return ref, nil
}

// Delete removes the node named by ref. ref must currently be live in
// this index.
//
// The two-children case never copies a successor's (key, val) into ref
// and deletes the successor's node: callers keep long-lived Refs into
// specific nodes (a lineage's AVL handle persists across unrelated
// Deletes elsewhere in the same index), so deleting-by-content-copy
// would silently invalidate some other live caller's Ref whenever it
// happened to be the in-order successor. Instead the successor is
// physically spliced into ref's structural position, keeping every
// node's Ref identity stable; only ref itself is freed.
func (idx *Index[V]) Delete(ref Ref) {
	n := idx.heap.Get(ref)
	switch {
	case n.left != Nil && n.right != Nil:
		idx.deleteTwoChildren(ref)
		return
	case n.left != Nil:
		idx.replace(ref, n.left)
	case n.right != Nil:
		idx.replace(ref, n.right)
	default:
		idx.replace(ref, Nil)
	}
	idx.heap.Free(ref)
}

// deleteTwoChildren splices ref's in-order successor into ref's
// structural position and frees ref, without moving any node's (key,
// val) across Refs.
func (idx *Index[V]) deleteTwoChildren(ref Ref) {
	n := idx.heap.Get(ref)
	succ := idx.min(n.right)
	sn := idx.heap.Get(succ)

	if succ == n.right {
		// Successor is ref's direct right child: no left-spine splice
		// needed, just hang ref's left subtree off it.
		sn.left = n.left
		if n.left != Nil {
			idx.heap.Get(n.left).parent = succ
		}
		sn.parent = n.parent
		idx.reparentInParent(n.parent, ref, succ)
		idx.heap.Free(ref)
		idx.retrace(succ)
		return
	}

	succParent := sn.parent
	succRight := sn.right
	idx.heap.Get(succParent).left = succRight
	if succRight != Nil {
		idx.heap.Get(succRight).parent = succParent
	}

	sn.left = n.left
	if n.left != Nil {
		idx.heap.Get(n.left).parent = succ
	}
	sn.right = n.right
	if n.right != Nil {
		idx.heap.Get(n.right).parent = succ
	}
	sn.parent = n.parent
	idx.reparentInParent(n.parent, ref, succ)

	idx.heap.Free(ref)
	// succ's own augmentation is refreshed as this walk passes through
	// it: succParent climbs back up the (untouched) left spine to what
	// used to be n.right, whose parent now points at succ.
	idx.retrace(succParent)
}

// replace splices child into parent's slot where ref used to sit and
// rebalances back to the root.
func (idx *Index[V]) replace(ref, child Ref) {
	n := idx.heap.Get(ref)
	parent := n.parent
	if child != Nil {
		idx.heap.Get(child).parent = parent
	}
	if parent == Nil {
		idx.root = child
		return
	}
	pn := idx.heap.Get(parent)
	if pn.left == ref {
		pn.left = child
	} else {
		pn.right = child
	}
	idx.retrace(parent)
}

func (idx *Index[V]) min(ref Ref) Ref {
	for {
		n := idx.heap.Get(ref)
		if n.left == Nil {
			return ref
		}
		ref = n.left
	}
}

// SelectByRank returns the node at 0-indexed in-order rank k. Panics if
// k is out of range; callers must check 0 <= k < Size() first (engine
// code derives k from Size()).
func (idx *Index[V]) SelectByRank(k int) Ref {
	cur := idx.root
	for cur != Nil {
		n := idx.heap.Get(cur)
		leftSize := 0
		if n.left != Nil {
			leftSize = int(idx.heap.Get(n.left).size)
		}
		switch {
		case k < leftSize:
			cur = n.left
		case k == leftSize:
			return cur
		default:
			k -= leftSize + 1
			cur = n.right
		}
	}
	panic("avlindex: rank out of range")
}

func (idx *Index[V]) heightOf(ref Ref) int8 {
	if ref == Nil {
		return 0
	}
	return idx.heap.Get(ref).height
}

func (idx *Index[V]) sizeOf(ref Ref) int32 {
	if ref == Nil {
		return 0
	}
	return idx.heap.Get(ref).size
}

func (idx *Index[V]) update(ref Ref) {
	n := idx.heap.Get(ref)
	lh, rh := idx.heightOf(n.left), idx.heightOf(n.right)
	if lh > rh {
		n.height = lh + 1
	} else {
		n.height = rh + 1
	}
	n.size = idx.sizeOf(n.left) + idx.sizeOf(n.right) + 1
}

func (idx *Index[V]) balanceFactor(ref Ref) int {
	n := idx.heap.Get(ref)
	return int(idx.heightOf(n.left)) - int(idx.heightOf(n.right))
}

// retraceInsert walks from the newly inserted node's parent to the root,
// updating augmentation and rebalancing.
func (idx *Index[V]) retraceInsert(ref Ref) {
	parent := idx.heap.Get(ref).parent
	idx.retrace(parent)
}

// retrace walks upward from ref (which may be Nil, terminating
// immediately), rebalancing every ancestor.
func (idx *Index[V]) retrace(ref Ref) {
	for ref != Nil {
		idx.update(ref)
		ref = idx.rebalance(ref)
		ref = idx.heap.Get(ref).parent
	}
}

// rebalance restores the AVL property at ref, returning the (possibly
// new) node occupying ref's former position.
func (idx *Index[V]) rebalance(ref Ref) Ref {
	bf := idx.balanceFactor(ref)
	n := idx.heap.Get(ref)
	switch {
	case bf > 1:
		if idx.balanceFactor(n.left) < 0 {
			n.left = idx.rotateLeft(n.left)
		}
		return idx.rotateRight(ref)
	case bf < -1:
		if idx.balanceFactor(n.right) > 0 {
			n.right = idx.rotateRight(n.right)
		}
		return idx.rotateLeft(ref)
	default:
		return ref
	}
}

// rotateLeft performs a left rotation around ref, returning the new
// subtree root.
func (idx *Index[V]) rotateLeft(ref Ref) Ref {
	n := idx.heap.Get(ref)
	pivot := n.right
	p := idx.heap.Get(pivot)

	n.right = p.left
	if p.left != Nil {
		idx.heap.Get(p.left).parent = ref
	}
	p.left = ref

	p.parent = n.parent
	n.parent = pivot
	idx.reparentInParent(p.parent, ref, pivot)

	idx.update(ref)
	idx.update(pivot)
	return pivot
}

// rotateRight performs a right rotation around ref, returning the new
// subtree root.
func (idx *Index[V]) rotateRight(ref Ref) Ref {
	n := idx.heap.Get(ref)
	pivot := n.left
	p := idx.heap.Get(pivot)

	n.left = p.right
	if p.right != Nil {
		idx.heap.Get(p.right).parent = ref
	}
	p.right = ref

	p.parent = n.parent
	n.parent = pivot
	idx.reparentInParent(p.parent, ref, pivot)

	idx.update(ref)
	idx.update(pivot)
	return pivot
}

// reparentInParent fixes grandparent's child pointer after a rotation
// moved oldChild's subtree root to newChild.
func (idx *Index[V]) reparentInParent(grandparent, oldChild, newChild Ref) {
	if grandparent == Nil {
		idx.root = newChild
		return
	}
	gp := idx.heap.Get(grandparent)
	if gp.left == oldChild {
		gp.left = newChild
	} else {
		gp.right = newChild
	}
}
