package xtree

import "sync/atomic"

// subspace is the reference-counted, shareable per-topological-subspace
// record spec.md calls SimplexLeafSubspace<N>. Its QEF is always over
// the leaf's full ambient dimension (see qef.go's doc comment); Vert is
// the solved vertex position as a full 3D point (an axis the region
// does not float keeps the region's pinned value on that axis);
// Index is the global numbering assigned post-build, 0 meaning
// unassigned.
type subspace struct {
	qef      QEF
	vert     [3]float64
	inside   bool
	index    uint64
	refcount atomic.Uint32
}

func (s *subspace) reset() {
	s.qef = QEF{}
	s.vert = [3]float64{}
	s.inside = false
	s.index = 0
	s.refcount.Store(0)
}

// borrow increments the refcount of an already-built neighbor's
// subspace that this leaf will now also reference.
func (s *subspace) borrow() { s.refcount.Add(1) }

// release decrements the refcount and reports whether it reached zero,
// in which case the caller must return s to its pool.
func (s *subspace) release() bool {
	return s.refcount.Add(^uint32(0)) == 0
}

// simplexLeaf is spec.md's SimplexLeaf<N>: a cell that has been fully
// evaluated (or produced by collapsing children) and may contribute
// triangles/segments to the extracted surface. sub holds one pointer
// per topological subspace, 3^dim of them; Level is 0 for a leaf
// produced directly by evalLeaf, and 1+max(child levels) for one
// produced by collapse.
type simplexLeaf struct {
	dim   int
	level uint32
	sub   []*subspace
}

func newSimplexLeaf(dim int) *simplexLeaf {
	return &simplexLeaf{dim: dim, sub: make([]*subspace, NumSubspaces(dim))}
}

func (l *simplexLeaf) reset() {
	l.level = 0
	for i := range l.sub {
		l.sub[i] = nil
	}
}

// releaseTo decrements the refcount of every subspace this leaf
// references, returning any that drop to zero to subPool, then returns
// the leaf itself to leafPool.
func (l *simplexLeaf) releaseTo(subPool *pool[*subspace], leafPool *pool[*simplexLeaf]) {
	for i, s := range l.sub {
		if s != nil && s.release() {
			subPool.put(s)
		}
		l.sub[i] = nil
	}
	leafPool.put(l)
}
