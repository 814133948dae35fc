package xtree

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is the triangulated isosurface extracted from a 3D tree:
// Triangles indexes into Vertices, three per face, in the order a
// right-handed outward normal requires.
type Mesh struct {
	Vertices  []r3.Vec
	Triangles [][3]int
}

// Contours is the set of polylines extracted from a 2D tree: each
// entry of Segments indexes a pair of points in Vertices forming one
// edge of the contour.
type Contours struct {
	Vertices []r2.Vec
	Segments [][2]int
}

// bodyNeighborIndex is the all-floating NeighborIndex of a
// dim-dimensional cell: (3^dim - 1) / 2, since every digit is 1.
func bodyNeighborIndex(dim int) NeighborIndex {
	return NeighborIndex((pow3[dim] - 1) / 2)
}

// edgeEndpoints returns the two corner-directed NeighborIndex values
// obtained by pinning ni's single floating digit to its low (0) and
// high (2) side, leaving every other digit unchanged. ni must have
// Dimension(dim) == 1.
func edgeEndpoints(ni NeighborIndex, dim int) (lo, hi NeighborIndex) {
	for j := 0; j < dim; j++ {
		if ni.digit(j) == 1 {
			base := int(ni) - pow3[j]
			return NeighborIndex(base), NeighborIndex(base + 2*pow3[j])
		}
	}
	return ni, ni
}

// leaves returns every SimplexLeaf in the tree via a DFS, in no
// particular order.
func (t *Tree) leaves() []*simplexLeaf {
	var out []*simplexLeaf
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.leaf != nil {
			out = append(out, n.leaf)
			return
		}
		for i := 0; i < n.numChildren(); i++ {
			walk(n.children[i])
		}
	}
	walk(t.root)
	return out
}

// touchingMap indexes, for every distinct subspace pointer referenced
// anywhere in the tree, the list of leaves that reference it — the
// "which cells share this subspace" lookup the dual walk needs.
func touchingMap(leaves []*simplexLeaf) map[*subspace][]*simplexLeaf {
	m := make(map[*subspace][]*simplexLeaf)
	for _, lf := range leaves {
		for _, s := range lf.sub {
			if s == nil {
				continue
			}
			m[s] = append(m[s], lf)
		}
	}
	return m
}

// vertexBuffer materializes one r3.Vec per distinct indexed subspace,
// keyed by (index-1), from an already-assignIndices'd tree.
func (t *Tree) vertexBuffer(leaves []*simplexLeaf) []r3.Vec {
	n := t.NumIndexed()
	verts := make([]r3.Vec, n)
	for _, lf := range leaves {
		for _, s := range lf.sub {
			if s != nil && s.index != 0 {
				verts[s.index-1] = fromArr(s.vert)
			}
		}
	}
	return verts
}

// Mesh extracts triangles from a tree built over a 3D region. It
// walks every sign-changing edge subspace once, fans the solved
// vertices of the cells sharing that edge around the edge's own
// solved vertex, and orients each triangle so its normal agrees with
// the direction from the edge's inside corner to its outside corner.
func (t *Tree) Mesh() Mesh {
	leaves := t.leaves()
	verts := t.vertexBuffer(leaves)
	touching := touchingMap(leaves)
	bodyNI := bodyNeighborIndex(t.dim)

	var tris [][3]int
	processed := make(map[*subspace]bool)

	for _, lf := range leaves {
		count := NumSubspaces(t.dim)
		for e := 0; e < count; e++ {
			ni := NeighborIndex(e)
			if ni.Dimension(t.dim) != 1 {
				continue
			}
			edgeSub := lf.sub[e]
			if edgeSub == nil || processed[edgeSub] {
				continue
			}
			loNI, hiNI := edgeEndpoints(ni, t.dim)
			lo, hi := lf.sub[loNI], lf.sub[hiNI]
			if lo == nil || hi == nil || lo.inside == hi.inside {
				continue
			}
			processed[edgeSub] = true

			around := touching[edgeSub]
			var body []*subspace
			for _, other := range around {
				if bs := other.sub[bodyNI]; bs != nil {
					body = append(body, bs)
				}
			}
			if len(body) < 3 {
				continue
			}
			insidePos, outsidePos := lo.vert, hi.vert
			if hi.inside {
				insidePos, outsidePos = hi.vert, lo.vert
			}
			tris = append(tris, fanTriangles(edgeSub, body, insidePos, outsidePos)...)
		}
	}

	return Mesh{Vertices: verts, Triangles: tris}
}

// fanTriangles sorts body (the solved BODY vertices of the cells
// sharing center's edge) cyclically around the edge and connects
// consecutive pairs to center, flipping each triangle's winding so
// its normal points from inside toward outside.
func fanTriangles(center *subspace, body []*subspace, insidePos, outsidePos [3]float64) [][3]int {
	c := fromArr(center.vert)
	axis := r3.Sub(fromArr(outsidePos), fromArr(insidePos))
	if r3.Norm(axis) == 0 {
		return nil
	}
	u, v := perpBasis(axis)

	type entry struct {
		sub   *subspace
		angle float64
	}
	entries := make([]entry, len(body))
	for i, b := range body {
		d := r3.Sub(fromArr(b.vert), c)
		entries[i] = entry{sub: b, angle: math.Atan2(r3.Dot(d, v), r3.Dot(d, u))}
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].angle < entries[j-1].angle; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}

	out := r3.Sub(fromArr(outsidePos), fromArr(insidePos))
	ci := int(center.index) - 1
	var tris [][3]int
	for i := 0; i < len(entries); i++ {
		a, b := entries[i], entries[(i+1)%len(entries)]
		ai, bi := int(a.sub.index)-1, int(b.sub.index)-1
		pa, pb := fromArr(a.sub.vert), fromArr(b.sub.vert)
		normal := r3.Cross(r3.Sub(pa, c), r3.Sub(pb, c))
		if r3.Dot(normal, out) < 0 {
			tris = append(tris, [3]int{ci, bi, ai})
		} else {
			tris = append(tris, [3]int{ci, ai, bi})
		}
	}
	return tris
}

// perpBasis returns two unit vectors spanning the plane perpendicular
// to axis, for angularly sorting points around it.
func perpBasis(axis r3.Vec) (u, v r3.Vec) {
	axis = r3.Scale(1/r3.Norm(axis), axis)
	ref := r3.Vec{X: 0, Y: 0, Z: 1}
	if math.Abs(r3.Dot(ref, axis)) > 0.9 {
		ref = r3.Vec{X: 1, Y: 0, Z: 0}
	}
	u = r3.Sub(ref, r3.Scale(r3.Dot(ref, axis), axis))
	u = r3.Scale(1/r3.Norm(u), u)
	v = r3.Cross(axis, u)
	return u, v
}

// Contours extracts polylines from a tree built over a 2D region.
// Every sign-changing edge subspace borders at most two cells; their
// BODY vertices become the two endpoints of one segment.
func (t *Tree) Contours() Contours {
	leaves := t.leaves()
	full := t.vertexBuffer(leaves)
	axes := t.region.Axes()
	verts := make([]r2.Vec, len(full))
	for i, p := range full {
		verts[i] = r2.Vec{X: axisOf(p, axes[0]), Y: axisOf(p, axes[1])}
	}
	touching := touchingMap(leaves)
	bodyNI := bodyNeighborIndex(t.dim)

	var segs [][2]int
	processed := make(map[*subspace]bool)
	for _, lf := range leaves {
		count := NumSubspaces(t.dim)
		for e := 0; e < count; e++ {
			ni := NeighborIndex(e)
			if ni.Dimension(t.dim) != 1 {
				continue
			}
			edgeSub := lf.sub[e]
			if edgeSub == nil || processed[edgeSub] {
				continue
			}
			loNI, hiNI := edgeEndpoints(ni, t.dim)
			lo, hi := lf.sub[loNI], lf.sub[hiNI]
			if lo == nil || hi == nil || lo.inside == hi.inside {
				continue
			}
			processed[edgeSub] = true

			around := touching[edgeSub]
			var body []*subspace
			for _, other := range around {
				if bs := other.sub[bodyNI]; bs != nil {
					body = append(body, bs)
				}
			}
			if len(body) != 2 {
				continue
			}
			segs = append(segs, [2]int{int(body[0].index) - 1, int(body[1].index) - 1})
		}
	}
	return Contours{Vertices: verts, Segments: segs}
}
