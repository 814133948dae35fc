package xtree

import "sync/atomic"

// Pooled is implemented by every type an object pool can dispense. Put
// clears the object back to its zero-ish state before it returns to
// the free list, mirroring libfive's Leaf::reset()/Subspace::reset().
type Pooled interface {
	reset()
}

// pool is a lock-free, allocation-amortizing free list for objects of
// a single type, built as a Treiber stack over an atomic pointer. A
// build's single *Pools (see below) is shared live across every worker
// goroutine, since subspaces are themselves shared and refcounted
// across workers (spec.md §4.7) — there is no per-worker ownership
// boundary a free list could be split along without also splitting
// that refcount. The CAS loop is what makes concurrent get/put safe
// under that sharing.
type pool[T Pooled] struct {
	head  atomic.Pointer[poolNode[T]]
	alloc func() T
	got   atomic.Uint64
	freed atomic.Uint64
}

type poolNode[T Pooled] struct {
	val  T
	next *poolNode[T]
}

func newPool[T Pooled](alloc func() T) *pool[T] {
	return &pool[T]{alloc: alloc}
}

// get returns a reused object if the free list is non-empty, or
// allocates a new one via alloc.
func (p *pool[T]) get() T {
	for {
		n := p.head.Load()
		if n == nil {
			break
		}
		if p.head.CompareAndSwap(n, n.next) {
			p.got.Add(1)
			return n.val
		}
	}
	p.got.Add(1)
	return p.alloc()
}

// put resets obj and returns it to the free list.
func (p *pool[T]) put(obj T) {
	obj.reset()
	n := &poolNode[T]{val: obj}
	for {
		head := p.head.Load()
		n.next = head
		if p.head.CompareAndSwap(head, n) {
			p.freed.Add(1)
			return
		}
	}
}

// outstanding returns the number of objects handed out but not yet
// returned, used by tests to check the refcount-conservation invariant
// (spec.md §8).
func (p *pool[T]) outstanding() int64 {
	return int64(p.got.Load()) - int64(p.freed.Load())
}

// Pools is the cascaded chain a tree build uses: a tree-node pool whose
// leaves borrow from a leaf pool, whose subspaces borrow from a
// subspace pool. One Pools value is constructed per Build call
// (newBuildContext) and shared by every worker goroutine for the
// duration of that build; there is no per-worker pool or merge step —
// sharing the pool is what lets one worker obtain a subspace another
// worker already solved and borrowed (obtainSubspace in tree.go).
type Pools struct {
	Nodes     *pool[*node]
	Leaves    *pool[*simplexLeaf]
	Subspaces *pool[*subspace]
}

// NewPools constructs a fresh cascaded pool chain for a tree of the
// given ambient dimension.
func NewPools(dim int) *Pools {
	return &Pools{
		Nodes:     newPool(func() *node { return &node{} }),
		Leaves:    newPool(func() *simplexLeaf { return newSimplexLeaf(dim) }),
		Subspaces: newPool(func() *subspace { return &subspace{} }),
	}
}
