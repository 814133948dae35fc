package xtree

import (
	"runtime"
)

// Options configures a Build call. The zero value is not usable:
// MinFeature must be set to something positive, and Build rejects a
// zero or negative MinFeature with ErrInvalidRegion.
type Options struct {
	// MinFeature is the smallest region diagonal recursion is allowed
	// to reach before an Ambiguous cell is forced to terminate as a
	// leaf regardless of its QEF residual.
	MinFeature float64

	// MaxDepth caps the number of bisections any branch of the tree may
	// undergo, regardless of how small MinFeature would otherwise allow
	// a cell to get (spec.md §4.1's mandatory max_depth input). A cell
	// still Ambiguous once its depth reaches MaxDepth terminates as a
	// leaf there, the same way reaching MinFeature does. Zero or
	// negative disables the cap, leaving MinFeature as the sole
	// recursion floor.
	MaxDepth int

	// MaxErr gates bottom-up collapse (spec.md §4.4): a node's children
	// are merged into one coarser leaf only when every affected
	// subspace's bounded QEF residual stays at or below MaxErr. Zero or
	// negative disables collapsing entirely — the tree is built to
	// uniform MinFeature resolution everywhere the surface is Ambiguous.
	MaxErr float64

	// Workers bounds the number of goroutines concurrently evaluating
	// cells. Zero or negative means GOMAXPROCS.
	Workers int

	// Abort, if non-nil, is polled cooperatively: once closed, every
	// Ambiguous cell still under construction is forced to terminate as
	// a leaf at its current depth instead of subdividing further. Build
	// still returns a nil error; the tree reports itself as partial via
	// Tree.Aborted.
	Abort <-chan struct{}

	// Progress, if non-nil, is called periodically during construction.
	// Build makes no density or ordering guarantee about these calls
	// beyond "more of them as more work completes."
	Progress func(done, total int)
}

func (o Options) normalized() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Tree is a fully built adaptive subdivision, ready for index
// assignment and surface extraction.
type Tree struct {
	dim     int
	region  Region
	root    *node
	pools   *Pools
	aborted bool
	nextIdx uint64
}

// Dim reports the ambient dimension this tree was built over (2 or 3).
func (t *Tree) Dim() int { return t.dim }

// Aborted reports whether the build was cut short by Options.Abort.
func (t *Tree) Aborted() bool { return t.aborted }

// PoolStats exposes outstanding allocation counts for the
// refcount-conservation invariant spec.md §8 describes: after a
// complete, non-aborted build every count must be zero once the
// caller is done walking the tree and calls Tree.Release.
type PoolStats struct {
	Nodes, Leaves, Subspaces int64
}

func (t *Tree) PoolStats() PoolStats {
	return PoolStats{
		Nodes:     t.pools.Nodes.outstanding(),
		Leaves:    t.pools.Leaves.outstanding(),
		Subspaces: t.pools.Subspaces.outstanding(),
	}
}

// Release returns every node, leaf, and subspace this tree holds back
// to its pool, decrementing subspace refcounts so a subspace shared by
// more than one leaf is only actually freed once every leaf
// referencing it has released it. After Release the tree must not be
// used again; PoolStats called afterward reports zero for a build that
// was the sole owner of every subspace it allocated (spec.md §8).
func (t *Tree) Release() {
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.leaf != nil {
			n.leaf.releaseTo(t.pools.Subspaces, t.pools.Leaves)
		} else {
			for i := 0; i < n.numChildren(); i++ {
				walk(n.children[i])
			}
		}
		t.pools.Nodes.put(n)
	}
	walk(t.root)
	t.root = nil
}

// Build constructs a tree over region by adaptively sampling eval,
// subdividing Ambiguous cells down to Options.MinFeature and
// (when MaxErr > 0) collapsing children back together wherever doing
// so keeps every affected QEF residual within MaxErr.
func Build(eval Evaluator, region Region, opts Options) (*Tree, error) {
	if !region.Valid() || opts.MinFeature <= 0 {
		return nil, ErrInvalidRegion
	}
	opts = opts.normalized()

	root, pools, aborted := buildRoot(eval, region, opts)

	t := &Tree{
		dim:     region.Dim(),
		region:  region,
		root:    root,
		pools:   pools,
		aborted: aborted,
	}
	t.assignIndices()
	return t, nil
}
