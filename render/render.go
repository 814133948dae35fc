// Package render adapts an extracted xtree.Mesh into the binary STL
// files downstream CAM/slicer tooling expects, following the same
// streaming Renderer/ReadTriangles split the rest of this module's
// teacher lineage uses for large meshes that shouldn't be held twice
// in memory (once as a Mesh, once as a triangle byte buffer).
package render

import "gonum.org/v1/gonum/spatial/r3"

// Renderer incrementally produces triangles. ReadTriangles behaves
// like io.Reader: it fills as much of t as it has ready and returns
// the count filled, with io.EOF once exhausted.
type Renderer interface {
	ReadTriangles(t []Triangle3) (int, error)
}

// Triangle3 is one face: three vertices in the winding order that
// determines its outward normal via Normal.
type Triangle3 struct {
	V [3]r3.Vec
}

// Normal returns the right-hand-rule normal of the triangle's winding.
func (t Triangle3) Normal() r3.Vec {
	e1 := r3.Sub(t.V[1], t.V[0])
	e2 := r3.Sub(t.V[2], t.V[0])
	return r3.Unit(r3.Cross(e1, e2))
}
