package xtree

import (
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
)

// node is spec.md's XTree<N>: a cell in the adaptive subdivision. A
// node with Terminal Empty/Filled state has no leaf at all. A node
// with Ambiguous state either owns a leaf directly (evalLeaf produced
// it, or collectChildren collapsed its children into one) or is a
// branch with live children and leaf == nil.
type node struct {
	dim           int
	region        Region
	parent        *node
	indexInParent int

	// pending counts children not yet fully resolved; the goroutine
	// whose decrement brings it to zero runs collectChildren on this
	// node and then propagates completion to the parent (spec.md §4.3).
	pending atomic.Int32

	children [8]*node
	state    Interval
	leaf     *simplexLeaf
}

func (n *node) reset() {
	n.dim = 0
	n.region = Region{}
	n.parent = nil
	n.indexInParent = 0
	n.pending.Store(0)
	for i := range n.children {
		n.children[i] = nil
	}
	n.state = Unknown
	n.leaf = nil
}

// numChildren is 2^dim, the branching factor of this node's subdivision.
func (n *node) numChildren() int { return 1 << n.dim }

func toArr(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func fromArr(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// buildContext is the state shared by every goroutine cooperating on
// one Build call: the evaluator is NOT shared (each worker clones its
// own), but the pools, neighbor registry and termination bookkeeping
// are.
type buildContext struct {
	pools    *Pools
	registry *neighborRegistry
	opts     Options

	sem     chan struct{}
	wg      sync.WaitGroup
	aborted atomic.Bool

	rootOnce sync.Once
	rootDone chan struct{}
}

func newBuildContext(dim int, opts Options) *buildContext {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &buildContext{
		pools:    NewPools(dim),
		registry: newNeighborRegistry(),
		opts:     opts,
		sem:      make(chan struct{}, workers),
		rootDone: make(chan struct{}),
	}
}

func (ctx *buildContext) trySpawn() bool {
	select {
	case ctx.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (ctx *buildContext) release() { <-ctx.sem }

// obtainSubspace returns the shared subspace for (region, s), solving
// and registering a fresh one via solve if no neighbor has claimed it
// yet. Every returned pointer carries one more borrowed reference,
// which the caller's leaf (or this call's own collapse accounting)
// owns until the leaf is released.
func (ctx *buildContext) obtainSubspace(region Region, s NeighborIndex, solve func() *subspace) *subspace {
	if existing, ok := ctx.registry.check(region, s); ok {
		existing.borrow()
		return existing
	}
	fresh := solve()
	winner, won := ctx.registry.claim(region, s, fresh)
	if !won {
		ctx.pools.Subspaces.put(fresh)
	}
	winner.borrow()
	return winner
}

// evalAtPoint samples f at a single point, used for the sign check
// that decides a solved vertex's inside/outside classification.
func evalAtPoint(eval Evaluator, p r3.Vec, tape Tape) float64 {
	eval.ArraySet(toArr(p), 0)
	return eval.ArrayValues(1, tape)[0]
}

func componentOf(d [4]float64, axis int) float64 { return d[axis] }

// buildRoot constructs the whole tree synchronously from the caller's
// point of view: it dispatches the recursive construction and blocks
// until the root is fully resolved (including any collapsing).
func buildRoot(eval Evaluator, region Region, opts Options) (*node, *Pools, bool) {
	ctx := newBuildContext(region.Dim(), opts)
	root := ctx.pools.Nodes.get()
	root.reset()
	root.dim = region.Dim()
	root.region = region
	buildNode(ctx, eval, root, nil, 0)
	<-ctx.rootDone
	ctx.wg.Wait()
	return root, ctx.pools, ctx.aborted.Load()
}

// buildNode classifies n against the evaluator and either terminates
// it (Empty/Filled, or Ambiguous at the feature-size floor or depth
// cap), or bisects and dispatches its children. tape is the narrowed
// program valid over n.region, or nil for the root. depth is the
// number of bisections already performed to reach n, 0 for the root.
func buildNode(ctx *buildContext, eval Evaluator, n *node, tape Tape, depth int) {
	if ctx.opts.Abort != nil {
		select {
		case <-ctx.opts.Abort:
			ctx.aborted.Store(true)
		default:
		}
	}

	state, narrowed := eval.Interval(toArr(n.region.Lower), toArr(n.region.Upper), tape)
	if !eval.IsSafe() {
		state = Ambiguous
	}
	n.state = state

	switch state {
	case Empty, Filled:
		finishNode(ctx, eval, n)
		return
	}

	atDepthCap := ctx.opts.MaxDepth > 0 && depth >= ctx.opts.MaxDepth
	if n.region.Diagonal() <= ctx.opts.MinFeature || atDepthCap || ctx.aborted.Load() {
		n.leaf = evalLeaf(ctx, eval, n, narrowed)
		finishNode(ctx, eval, n)
		return
	}

	children := n.region.Bisect()
	n.pending.Store(int32(len(children)))
	for i, childRegion := range children {
		i, childRegion := i, childRegion
		child := ctx.pools.Nodes.get()
		child.reset()
		child.dim = childRegion.Dim()
		child.region = childRegion
		child.parent = n
		child.indexInParent = i
		n.children[i] = child

		if ctx.trySpawn() {
			ctx.wg.Add(1)
			go func() {
				defer ctx.wg.Done()
				defer ctx.release()
				buildNode(ctx, eval.Clone(), child, narrowed, depth+1)
			}()
		} else {
			buildNode(ctx, eval, child, narrowed, depth+1)
		}
	}

	if ctx.opts.Progress != nil {
		ctx.opts.Progress(0, 0)
	}
}

// finishNode marks n fully resolved and propagates completion to its
// parent, running collectChildren on the parent exactly once, from
// whichever goroutine's decrement observes the fan-in reach zero. eval
// is whichever worker's clone happened to finish last; any clone is
// valid for the pointwise inside/outside evaluation a collapse needs,
// since Evaluator implementations are pure functions of position.
func finishNode(ctx *buildContext, eval Evaluator, n *node) {
	if n.parent == nil {
		ctx.rootOnce.Do(func() { close(ctx.rootDone) })
		return
	}
	parent := n.parent
	if parent.pending.Add(-1) == 0 {
		// collectChildren may return n to the node pool (resetting its
		// parent link), so the parent is captured before the call.
		collectChildren(ctx, eval, parent)
		finishNode(ctx, eval, parent)
	}
}

// evalLeaf builds a fresh SimplexLeaf for n by sampling every
// topological subspace's corners, accumulating its QEF and solving
// for a bounded vertex, per spec.md §4.1-§4.2.
func evalLeaf(ctx *buildContext, eval Evaluator, n *node, tape Tape) *simplexLeaf {
	leaf := ctx.pools.Leaves.get()
	leaf.reset()
	leaf.dim = n.dim
	leaf.level = 0

	count := NumSubspaces(n.dim)
	for s := 0; s < count; s++ {
		ni := NeighborIndex(s)
		leaf.sub[s] = ctx.obtainSubspace(n.region, ni, func() *subspace {
			return solveSubspace(eval, n.region, ni, tape, ctx.pools)
		})
	}
	return leaf
}

func solveSubspace(eval Evaluator, region Region, s NeighborIndex, tape Tape, pools *Pools) *subspace {
	dim := region.Dim()
	subRegion := region.Subspace(s)
	cellAxes := region.Axes()

	numCorners := NumCorners(subRegion.Dim())
	corners := make([]r3.Vec, numCorners)
	for i := 0; i < numCorners; i++ {
		corners[i] = subRegion.Corner(CornerIndex(i))
	}
	for i, p := range corners {
		eval.ArraySet(toArr(p), i)
	}
	derivs := eval.ArrayDerivs(numCorners, tape)
	ambiguous := eval.ArrayAmbiguous(numCorners, tape)

	qef := NewQEF(dim)
	for i, p := range corners {
		if ambiguous[i] {
			for _, g := range eval.Features(toArr(p), tape) {
				var pp, gg [3]float64
				for j, axis := range cellAxes {
					pp[j] = axisOf(p, axis)
					gg[j] = componentOf([4]float64{g[0], g[1], g[2], 0}, axis)
				}
				qef.Insert(pp, gg, 0)
			}
			continue
		}
		d := derivs[i]
		var pp, gg [3]float64
		for j, axis := range cellAxes {
			pp[j] = axisOf(p, axis)
			gg[j] = componentOf(d, axis)
		}
		qef.Insert(pp, gg, d[3])
	}

	mask := uint32(s.Floating(dim))
	reduced := qef.Sub(mask)
	subAxes := subRegion.Axes()
	lower := make([]float64, len(subAxes))
	upper := make([]float64, len(subAxes))
	for k, axis := range subAxes {
		lower[k] = subRegion.lo(axis)
		upper[k] = subRegion.hi(axis)
	}
	pos, _ := reduced.SolveBounded(lower, upper)

	vert := region.Lower
	for axis := 0; axis < 3; axis++ {
		if region.Floating&(1<<axis) == 0 {
			continue
		}
		if subRegion.Floating&(1<<axis) == 0 {
			setAxis(&vert, axis, subRegion.lo(axis))
		}
	}
	for k, axis := range subAxes {
		setAxis(&vert, axis, pos[k])
	}

	sub := pools.Subspaces.get()
	sub.reset()
	sub.qef = qef
	sub.vert = toArr(vert)
	v := evalAtPoint(eval, vert, tape)
	switch {
	case v < 0:
		sub.inside = true
	case v > 0:
		sub.inside = false
	default:
		sub.inside = eval.IsInside(toArr(vert), tape)
	}
	return sub
}

// collectChildren runs once all of n's children have finished. It
// merges their Interval classification and, when every child is a
// leaf (none is a further branch) and opts.MaxErr permits it, attempts
// to collapse them into one coarser leaf (spec.md §4.4). Children and
// their leaves that are no longer needed are returned to their pools.
func collectChildren(ctx *buildContext, eval Evaluator, n *node) {
	nc := n.numChildren()
	states := make([]Interval, nc)
	for i := 0; i < nc; i++ {
		states[i] = n.children[i].state
	}
	n.state = merge(states...)

	if n.state != Ambiguous {
		releaseChildren(ctx, n)
		return
	}

	if ctx.opts.MaxErr > 0 {
		if collapsed := attemptCollapse(ctx, eval, n); collapsed != nil {
			n.leaf = collapsed
			releaseChildren(ctx, n)
			return
		}
	}
	// Kept as a branch: children remain attached, n.leaf stays nil.
}

// releaseChildren discards a node's child *node* records, dropping
// each child leaf's own reference to every subspace it pointed at.
// This runs both when the merged state is Empty/Filled (no leaf
// detail needed at all) and after a successful collapse — in the
// collapse case the new leaf already holds its own borrowed
// references via attemptCollapse's obtainSubspace calls, so releasing
// the children's original references here is exactly the bookkeeping
// a normal teardown would do.
func releaseChildren(ctx *buildContext, n *node) {
	nc := n.numChildren()
	for i := 0; i < nc; i++ {
		c := n.children[i]
		if c.leaf != nil {
			c.leaf.releaseTo(ctx.pools.Subspaces, ctx.pools.Leaves)
		}
		n.children[i] = nil
		ctx.pools.Nodes.put(c)
	}
}

// attemptCollapse tries to build a single leaf for n from its
// children's subspace QEFs, returning nil if any child is itself a
// branch (can't collapse through an unresolved subtree) or if any
// subspace's bounded residual exceeds opts.MaxErr.
func attemptCollapse(ctx *buildContext, eval Evaluator, n *node) *simplexLeaf {
	nc := n.numChildren()
	childRegions := make([]Region, nc)
	for i := 0; i < nc; i++ {
		c := n.children[i]
		if c.state == Ambiguous && c.leaf == nil {
			return nil
		}
		childRegions[i] = c.region
	}

	count := NumSubspaces(n.dim)
	keyToIndex := make(map[subspaceKey]int, count)
	for s := 0; s < count; s++ {
		keyToIndex[subspaceKeyOf(n.region, NeighborIndex(s))] = s
	}

	accs := make([]QEF, count)
	for s := range accs {
		accs[s] = NewQEF(n.dim)
	}
	seen := make(map[*subspace]bool)
	for i := 0; i < nc; i++ {
		leaf := n.children[i].leaf
		if leaf == nil {
			continue
		}
		for r, sub := range leaf.sub {
			if sub == nil || seen[sub] {
				continue
			}
			key := subspaceKeyOf(childRegions[i], NeighborIndex(r))
			s, ok := keyToIndex[key]
			if !ok {
				continue
			}
			seen[sub] = true
			accs[s] = accs[s].Add(sub.qef)
		}
	}

	solved := make([]*subspace, count)
	for s := 0; s < count; s++ {
		ni := NeighborIndex(s)
		subRegion := n.region.Subspace(ni)
		mask := uint32(ni.Floating(n.dim))
		reduced := accs[s].Sub(mask)
		subAxes := subRegion.Axes()
		lower := make([]float64, len(subAxes))
		upper := make([]float64, len(subAxes))
		for k, axis := range subAxes {
			lower[k] = subRegion.lo(axis)
			upper[k] = subRegion.hi(axis)
		}
		pos, resid := reduced.SolveBounded(lower, upper)
		if resid > ctx.opts.MaxErr {
			return nil
		}

		vert := n.region.Lower
		for axis := 0; axis < 3; axis++ {
			if n.region.Floating&(1<<axis) == 0 {
				continue
			}
			if subRegion.Floating&(1<<axis) == 0 {
				setAxis(&vert, axis, subRegion.lo(axis))
			}
		}
		for k, axis := range subAxes {
			setAxis(&vert, axis, pos[k])
		}

		acc := accs[s]
		inside := insideAt(eval, vert)
		solved[s] = ctx.obtainSubspace(n.region, ni, func() *subspace {
			fresh := ctx.pools.Subspaces.get()
			fresh.reset()
			fresh.qef = acc
			fresh.vert = toArr(vert)
			fresh.inside = inside
			return fresh
		})
	}

	leaf := ctx.pools.Leaves.get()
	leaf.reset()
	leaf.dim = n.dim
	leaf.level = 1 + maxChildLevel(n)
	copy(leaf.sub, solved)
	return leaf
}

// insideAt classifies a collapsed subspace's solved vertex the same way
// solveSubspace classifies a freshly evaluated one (spec.md §4.6): by
// the sign of f at vert, falling back to IsInside exactly on the zero
// set. A child's own inside flag belongs to a different, finer
// subspace and cannot be copied onto the parent's.
func insideAt(eval Evaluator, vert r3.Vec) bool {
	v := evalAtPoint(eval, vert, nil)
	switch {
	case v < 0:
		return true
	case v > 0:
		return false
	default:
		return eval.IsInside(toArr(vert), nil)
	}
}

func maxChildLevel(n *node) uint32 {
	var max uint32
	for i := 0; i < n.numChildren(); i++ {
		if leaf := n.children[i].leaf; leaf != nil && leaf.level > max {
			max = leaf.level
		}
	}
	return max
}
