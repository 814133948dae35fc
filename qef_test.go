package xtree

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	d := a - b
	return d > -tol && d < tol
}

func TestQEFPlaneMinimizerSitsOnPlane(t *testing.T) {
	// Every sample is the plane z=0 seen from directly above, so the
	// unconstrained minimizer can be any point on that plane; the
	// residual at the solution must be (near) zero.
	q := NewQEF(3)
	samples := [][3]float64{{-1, -1, 0}, {1, -1, 0}, {-1, 1, 0}, {1, 1, 0}}
	for _, p := range samples {
		q.Insert(p, [3]float64{0, 0, 1}, 0)
	}
	pos, resid := q.SolveBounded([]float64{-1, -1, -1}, []float64{1, 1, 1})
	if !approxEqual(pos[2], 0, 1e-9) {
		t.Errorf("solved z = %v, want ~0", pos[2])
	}
	if resid > 1e-9 {
		t.Errorf("residual = %v, want ~0", resid)
	}
}

func TestQEFCornerOfTwoPlanesPinsIntersection(t *testing.T) {
	// Two perpendicular planes x=0 and y=0 intersect along the z axis;
	// the solver should recover x=0, y=0 regardless of z.
	q := NewQEF(3)
	q.Insert([3]float64{0, 1, 1}, [3]float64{1, 0, 0}, 0)
	q.Insert([3]float64{0, -1, -1}, [3]float64{1, 0, 0}, 0)
	q.Insert([3]float64{1, 0, 1}, [3]float64{0, 1, 0}, 0)
	q.Insert([3]float64{-1, 0, -1}, [3]float64{0, 1, 0}, 0)
	pos, resid := q.SolveBounded([]float64{-2, -2, -2}, []float64{2, 2, 2})
	if !approxEqual(pos[0], 0, 1e-9) || !approxEqual(pos[1], 0, 1e-9) {
		t.Errorf("solved (x,y) = (%v,%v), want (0,0)", pos[0], pos[1])
	}
	if resid > 1e-9 {
		t.Errorf("residual = %v, want ~0", resid)
	}
}

func TestQEFBoundedClampsOutOfRangeMinimizer(t *testing.T) {
	// A single-plane constraint x=5 pulls the minimizer outside [-1,1];
	// the bounded solve must clamp to the boundary.
	q := NewQEF(2)
	q.Insert([3]float64{5, 0, 0}, [3]float64{1, 0, 0}, 0)
	pos, _ := q.SolveBounded([]float64{-1, -1}, []float64{1, 1})
	if !approxEqual(pos[0], 1, 1e-9) {
		t.Errorf("solved x = %v, want 1 (clamped)", pos[0])
	}
}

func TestQEFAddIsCommutative(t *testing.T) {
	a := NewQEF(3)
	a.Insert([3]float64{1, 2, 3}, [3]float64{1, 0, 0}, 0.5)
	b := NewQEF(3)
	b.Insert([3]float64{-1, 0, 2}, [3]float64{0, 1, 0}, -0.25)
	if ab, ba := a.Add(b), b.Add(a); ab != ba {
		t.Errorf("Add not commutative: %+v vs %+v", ab, ba)
	}
}

func TestQEFZeroNormalDoesNotPerturbAtA(t *testing.T) {
	q := NewQEF(3)
	q.Insert([3]float64{1, 1, 1}, [3]float64{1, 0, 0}, 0)
	before := q.AtA
	q.Insert([3]float64{2, 2, 2}, [3]float64{0, 0, 0}, 0)
	if q.AtA != before {
		t.Errorf("zero-length normal sample should not perturb AtA")
	}
	if q.Count != 2 {
		t.Errorf("Count = %d, want 2", q.Count)
	}
}

func TestQEFNonFiniteNormalDegradesToPositionOnly(t *testing.T) {
	q := NewQEF(3)
	q.Insert([3]float64{1, 1, 1}, [3]float64{1, 0, 0}, 0)
	before := q.AtA
	q.Insert([3]float64{2, 2, 2}, [3]float64{math.NaN(), 0, 0}, 0)
	q.Insert([3]float64{3, 3, 3}, [3]float64{math.Inf(1), 0, 0}, 0)
	if q.AtA != before {
		t.Errorf("non-finite normal sample should not perturb AtA: got %+v, want %+v", q.AtA, before)
	}
	if q.Count != 3 {
		t.Errorf("Count = %d, want 3", q.Count)
	}
}

func TestQEFSubReducesDimension(t *testing.T) {
	q := NewQEF(3)
	q.Insert([3]float64{1, 2, 3}, [3]float64{1, 1, 1}, 0)
	reduced := q.Sub(0b011) // fix Z at the sample mean, keep X and Y floating
	if reduced.N != 2 {
		t.Errorf("reduced.N = %d, want 2", reduced.N)
	}
}
