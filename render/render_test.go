package render

import (
	"bytes"
	"io"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	xtree "github.com/dtmfgold/libfive"
)

func unitTriangle() Triangle3 {
	return Triangle3{V: [3]r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
	}}
}

func TestTriangle3NormalIsUnitZ(t *testing.T) {
	n := unitTriangle().Normal()
	if n.Z < 0.99 || n.X != 0 || n.Y != 0 {
		t.Errorf("Normal() = %v, want ~(0,0,1)", n)
	}
}

func TestWriteSTLRejectsEmptyModel(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSTL(&buf, nil); err == nil {
		t.Errorf("expected error writing an empty triangle slice")
	}
}

func TestWriteAndReadBinarySTLRoundTrips(t *testing.T) {
	model := []Triangle3{unitTriangle(), {V: [3]r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: -1, Y: 0, Z: 0},
	}}}
	var buf bytes.Buffer
	if err := WriteSTL(&buf, model); err != nil {
		t.Fatalf("WriteSTL: %v", err)
	}
	got, err := readBinarySTL(&buf)
	if err != nil {
		t.Fatalf("readBinarySTL: %v", err)
	}
	if len(got) != len(model) {
		t.Fatalf("got %d triangles, want %d", len(got), len(model))
	}
	for i, tri := range got {
		for j, v := range tri.V {
			want := model[i].V[j]
			if approxEqualF(v.X, want.X) && approxEqualF(v.Y, want.Y) && approxEqualF(v.Z, want.Z) {
				continue
			}
			t.Errorf("triangle %d vertex %d = %v, want %v", i, j, v, want)
		}
	}
}

func approxEqualF(a, b float64) bool {
	d := a - b
	return d > -1e-5 && d < 1e-5
}

func TestMeshRendererStreamsAllTrianglesThenEOF(t *testing.T) {
	mesh := &xtree.Mesh{
		Vertices: []r3.Vec{
			{X: 0, Y: 0, Z: 0},
			{X: 1, Y: 0, Z: 0},
			{X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1},
		},
		Triangles: [][3]int{{0, 1, 2}, {0, 1, 3}, {1, 2, 3}},
	}
	r := NewMeshRenderer(mesh)

	buf := make([]Triangle3, 2)
	n, err := r.ReadTriangles(buf)
	if err != nil || n != 2 {
		t.Fatalf("first read: n=%d err=%v, want 2, nil", n, err)
	}
	n, err = r.ReadTriangles(buf)
	if n != 1 || err != io.EOF {
		t.Fatalf("second read: n=%d err=%v, want 1, io.EOF", n, err)
	}
}
