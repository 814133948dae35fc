package xtree_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	xtree "github.com/dtmfgold/libfive"
	"github.com/dtmfgold/libfive/xtreetest"
)

func TestBuildRejectsInvalidRegion(t *testing.T) {
	eval := xtreetest.NewSphere(r3.Vec{}, 1)
	bad := xtree.NewRegion3(r3.Vec{X: 1}, r3.Vec{X: -1})
	if _, err := xtree.Build(eval, bad, xtree.Options{MinFeature: 0.1}); !xtree.IsInvalidRegion(err) {
		t.Fatalf("expected ErrInvalidRegion, got %v", err)
	}
	good := xtree.NewRegion3(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1})
	if _, err := xtree.Build(eval, good, xtree.Options{MinFeature: 0}); !xtree.IsInvalidRegion(err) {
		t.Fatalf("expected ErrInvalidRegion for zero MinFeature, got %v", err)
	}
}

func TestBuildEmptyRegionHasNoSurface(t *testing.T) {
	eval := xtreetest.NewSphere(r3.Vec{}, 1)
	region := xtree.NewRegion3(r3.Vec{X: 10, Y: 10, Z: 10}, r3.Vec{X: 12, Y: 12, Z: 12})
	tree, err := xtree.Build(eval, region, xtree.Options{MinFeature: 0.25})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	mesh := tree.Mesh()
	if len(mesh.Triangles) != 0 {
		t.Errorf("expected no triangles for an empty region, got %d", len(mesh.Triangles))
	}
}

func TestBuildSphereMeshLiesNearUnitSphere(t *testing.T) {
	eval := xtreetest.NewSphere(r3.Vec{}, 1)
	region := xtree.NewRegion3(r3.Vec{X: -1.5, Y: -1.5, Z: -1.5}, r3.Vec{X: 1.5, Y: 1.5, Z: 1.5})
	tree, err := xtree.Build(eval, region, xtree.Options{MinFeature: 0.25})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	mesh := tree.Mesh()
	if len(mesh.Triangles) == 0 {
		t.Fatalf("expected triangles for a sphere crossing the region")
	}
	for _, tri := range mesh.Triangles {
		for _, vi := range tri {
			if vi < 0 || vi >= len(mesh.Vertices) {
				t.Fatalf("triangle references out-of-range vertex %d", vi)
			}
		}
	}
	// Every mesh vertex must land approximately on the unit sphere.
	for _, v := range mesh.Vertices {
		d := r3.Norm(v)
		if math.Abs(d-1) > 0.2 {
			t.Errorf("vertex %v has radius %v, want ~1", v, d)
		}
	}
}

func TestBuildTwoDisjointSpheresProducesTwoShells(t *testing.T) {
	a := xtreetest.NewSphere(r3.Vec{X: -3}, 1)
	b := xtreetest.NewSphere(r3.Vec{X: 3}, 1)
	eval := xtreetest.NewUnion(a, b)
	region := xtree.NewRegion3(r3.Vec{X: -5, Y: -2, Z: -2}, r3.Vec{X: 5, Y: 2, Z: 2})
	tree, err := xtree.Build(eval, region, xtree.Options{MinFeature: 0.25})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	mesh := tree.Mesh()
	if len(mesh.Triangles) == 0 {
		t.Fatalf("expected triangles for two spheres")
	}
	nearA, nearB := 0, 0
	for _, v := range mesh.Vertices {
		if r3.Norm(r3.Sub(v, a.Center)) < 1.5 {
			nearA++
		}
		if r3.Norm(r3.Sub(v, b.Center)) < 1.5 {
			nearB++
		}
	}
	if nearA == 0 || nearB == 0 {
		t.Errorf("expected vertices near both spheres, got %d near A and %d near B", nearA, nearB)
	}
}

func TestBuild2DContourProducesClosedLoop(t *testing.T) {
	eval := xtreetest.NewSphere(r3.Vec{}, 1)
	region := xtree.NewRegion2(
		r2.Vec{X: -1.5, Y: -1.5}, r2.Vec{X: 1.5, Y: 1.5}, 0)
	// Tight enough that the per-edge QEF solve's curvature error (the
	// tangent-line sagitta against a unit circle scales with the square
	// of the cell size) stays well under the 1e-3 bound checked below.
	tree, err := xtree.Build(eval, region, xtree.Options{MinFeature: 0.02})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	contours := tree.Contours()
	if len(contours.Segments) == 0 {
		t.Fatalf("expected segments for a circle crossing the region")
	}
	degree := make(map[int]int)
	for _, seg := range contours.Segments {
		degree[seg[0]]++
		degree[seg[1]]++
	}
	for v, d := range degree {
		if d != 2 {
			t.Errorf("vertex %d has degree %d in the contour, want 2 (closed loop)", v, d)
		}
	}
	for _, v := range contours.Vertices {
		r := math.Hypot(v.X, v.Y)
		if math.Abs(r-1) > 1e-3 {
			t.Errorf("vertex %v has radius %v, want within 1e-3 of 1", v, r)
		}
	}
}

func TestBuildMaxDepthCapsSubdivision(t *testing.T) {
	eval := xtreetest.NewSphere(r3.Vec{}, 1)
	region := xtree.NewRegion3(r3.Vec{X: -2, Y: -2, Z: -2}, r3.Vec{X: 2, Y: 2, Z: 2})
	shallow, err := xtree.Build(eval, region, xtree.Options{MinFeature: 1e-6, MaxDepth: 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	deep, err := xtree.Build(eval, region, xtree.Options{MinFeature: 0.2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if shallow.PoolStats().Nodes >= deep.PoolStats().Nodes {
		t.Errorf("expected MaxDepth to cap recursion well below MinFeature-only: capped=%d uncapped=%d",
			shallow.PoolStats().Nodes, deep.PoolStats().Nodes)
	}
	mesh := shallow.Mesh()
	for _, tri := range mesh.Triangles {
		for _, vi := range tri {
			if vi < 0 || vi >= len(mesh.Vertices) {
				t.Fatalf("triangle references out-of-range vertex %d", vi)
			}
		}
	}
}

func TestTreeReleaseZeroesPoolStats(t *testing.T) {
	eval := xtreetest.NewSphere(r3.Vec{}, 1)
	region := xtree.NewRegion3(r3.Vec{X: -1.5, Y: -1.5, Z: -1.5}, r3.Vec{X: 1.5, Y: 1.5, Z: 1.5})
	tree, err := xtree.Build(eval, region, xtree.Options{MinFeature: 0.25})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	before := tree.PoolStats()
	if before.Nodes == 0 || before.Leaves == 0 || before.Subspaces == 0 {
		t.Fatalf("expected a built sphere tree to hold outstanding allocations, got %+v", before)
	}
	tree.Release()
	after := tree.PoolStats()
	if after != (xtree.PoolStats{}) {
		t.Errorf("PoolStats after Release = %+v, want all zero", after)
	}
}

func TestBuildCollapseReducesLeafCountOnFlatRegion(t *testing.T) {
	box := xtreetest.NewBox(r3.Vec{}, r3.Vec{X: 5, Y: 5, Z: 5})
	// A region straddling only the +Z face, well away from any edge: a
	// flat plane locally, so a generous MaxErr should collapse it into
	// far fewer leaves than uniform MinFeature resolution would need.
	region := xtree.NewRegion3(r3.Vec{X: -1, Y: -1, Z: 4.5}, r3.Vec{X: 1, Y: 1, Z: 5.5})
	uncollapsed, err := xtree.Build(box, region, xtree.Options{MinFeature: 0.05})
	if err != nil {
		t.Fatalf("Build (uncollapsed): %v", err)
	}
	collapsed, err := xtree.Build(box, region, xtree.Options{MinFeature: 0.05, MaxErr: 1e-6})
	if err != nil {
		t.Fatalf("Build (collapsed): %v", err)
	}
	if collapsed.PoolStats().Leaves >= uncollapsed.PoolStats().Leaves {
		t.Errorf("expected collapsing a flat region to reduce leaf count: collapsed=%d uncollapsed=%d",
			collapsed.PoolStats().Leaves, uncollapsed.PoolStats().Leaves)
	}
	mesh := collapsed.Mesh()
	if len(mesh.Triangles) == 0 {
		t.Fatalf("expected triangles for a flat face crossing the region")
	}
	for _, tri := range mesh.Triangles {
		for _, vi := range tri {
			if vi < 0 || vi >= len(mesh.Vertices) {
				t.Fatalf("triangle references out-of-range vertex %d", vi)
			}
		}
	}
}

func TestBuildAbortStopsSubdivision(t *testing.T) {
	eval := xtreetest.NewSphere(r3.Vec{}, 1)
	region := xtree.NewRegion3(r3.Vec{X: -2, Y: -2, Z: -2}, r3.Vec{X: 2, Y: 2, Z: 2})
	abort := make(chan struct{})
	close(abort)
	tree, err := xtree.Build(eval, region, xtree.Options{MinFeature: 0.001, Abort: abort})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !tree.Aborted() {
		t.Errorf("expected tree.Aborted() to be true")
	}
	// An aborted build still walks whatever partial tree it has and hands
	// back a usable mesh, and Release still returns every pool object.
	mesh := tree.Mesh()
	for _, tri := range mesh.Triangles {
		for _, vi := range tri {
			if vi < 0 || vi >= len(mesh.Vertices) {
				t.Fatalf("triangle references out-of-range vertex %d", vi)
			}
		}
	}
	stats := tree.PoolStats()
	if stats.Nodes == 0 {
		t.Fatalf("expected an aborted build to still hold a partial tree, got %+v", stats)
	}
	tree.Release()
	if after := tree.PoolStats(); after != (xtree.PoolStats{}) {
		t.Errorf("PoolStats after Release on an aborted tree = %+v, want all zero", after)
	}
}

func triangleNormal(mesh xtree.Mesh, tri [3]int) r3.Vec {
	v0, v1, v2 := mesh.Vertices[tri[0]], mesh.Vertices[tri[1]], mesh.Vertices[tri[2]]
	return r3.Cross(r3.Sub(v1, v0), r3.Sub(v2, v0))
}

func TestBuildBoxEdgePreservesSharpFeature(t *testing.T) {
	box := xtreetest.NewBox(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	// Straddles the box's x=1,y=1 edge: the +X and +Y faces meet here at
	// a right angle, so the mesh must carry two distinct, nearly
	// perpendicular facet orientations rather than one averaged-normal
	// patch, or the sharp feature (spec.md §8 scenario 2) has collapsed.
	region := xtree.NewRegion3(r3.Vec{X: 0.5, Y: 0.5, Z: -0.3}, r3.Vec{X: 1.5, Y: 1.5, Z: 0.3})
	tree, err := xtree.Build(box, region, xtree.Options{MinFeature: 0.05})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	mesh := tree.Mesh()
	if len(mesh.Triangles) == 0 {
		t.Fatalf("expected triangles for a box edge crossing the region")
	}
	normals := make([]r3.Vec, len(mesh.Triangles))
	for i, tri := range mesh.Triangles {
		normals[i] = r3.Unit(triangleNormal(mesh, tri))
	}
	foundPerpendicularPair := false
	for i := range normals {
		for j := i + 1; j < len(normals); j++ {
			if math.Abs(r3.Dot(normals[i], normals[j])) < 0.3 {
				foundPerpendicularPair = true
				break
			}
		}
		if foundPerpendicularPair {
			break
		}
	}
	if !foundPerpendicularPair {
		t.Errorf("expected at least one pair of near-perpendicular facets across the box edge, found none")
	}
}
