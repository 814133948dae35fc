package xtree_test

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	xtree "github.com/dtmfgold/libfive"
	"github.com/dtmfgold/libfive/xtreetest"
)

func TestAssignIndicesIsIdempotent(t *testing.T) {
	eval := xtreetest.NewSphere(r3.Vec{}, 1)
	region := xtree.NewRegion3(r3.Vec{X: -1.5, Y: -1.5, Z: -1.5}, r3.Vec{X: 1.5, Y: 1.5, Z: 1.5})
	tree, err := xtree.Build(eval, region, xtree.Options{MinFeature: 0.25})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	before := tree.Mesh()
	if len(before.Triangles) == 0 {
		t.Fatalf("expected triangles for a sphere crossing the region")
	}
	tree.AssignIndices()
	after := tree.Mesh()

	if tree.NumIndexed() != uint64(len(before.Vertices)) {
		t.Fatalf("NumIndexed changed across a repeat AssignIndices call: %d vs %d",
			tree.NumIndexed(), len(before.Vertices))
	}
	if len(after.Triangles) != len(before.Triangles) {
		t.Fatalf("triangle count changed across a repeat AssignIndices call: %d vs %d",
			len(after.Triangles), len(before.Triangles))
	}
	for i := range before.Triangles {
		if before.Triangles[i] != after.Triangles[i] {
			t.Errorf("triangle %d indices changed: %v vs %v", i, before.Triangles[i], after.Triangles[i])
		}
	}
	for i := range before.Vertices {
		if before.Vertices[i] != after.Vertices[i] {
			t.Errorf("vertex %d position changed: %v vs %v", i, before.Vertices[i], after.Vertices[i])
		}
	}
}
