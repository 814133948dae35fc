package render

import (
	"io"

	xtree "github.com/dtmfgold/libfive"
)

// MeshRenderer streams the triangles of a built xtree.Mesh through
// the Renderer interface CreateSTL/WriteSTL consume.
type MeshRenderer struct {
	mesh *xtree.Mesh
	next int
}

// NewMeshRenderer wraps mesh for STL export.
func NewMeshRenderer(mesh *xtree.Mesh) *MeshRenderer {
	return &MeshRenderer{mesh: mesh}
}

// ReadTriangles implements Renderer.
func (m *MeshRenderer) ReadTriangles(t []Triangle3) (int, error) {
	n := 0
	for n < len(t) && m.next < len(m.mesh.Triangles) {
		tri := m.mesh.Triangles[m.next]
		for i, vi := range tri {
			t[n].V[i] = m.mesh.Vertices[vi]
		}
		n++
		m.next++
	}
	if m.next >= len(m.mesh.Triangles) {
		return n, io.EOF
	}
	return n, nil
}
