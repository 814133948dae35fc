package xtree

import (
	"math/bits"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Region is an axis-aligned box in the ambient 3D evaluation space. A
// node's Region may be degenerate in one axis (Floating bit clear):
// evaluating the surface over a 2D slice of a 3D evaluator pins the
// absent axis at Lower==Upper, playing the role of spec.md's "perp"
// coordinate. Lower must be <= Upper componentwise on every floating
// axis.
type Region struct {
	Lower, Upper r3.Vec
	// Floating is a bitmask (bit 0=X, 1=Y, 2=Z) of axes that vary.
	// Dim() is the population count of this mask.
	Floating uint8
}

// NewRegion3 returns a Region spanning all three axes.
func NewRegion3(lower, upper r3.Vec) Region {
	return Region{Lower: lower, Upper: upper, Floating: 0b111}
}

// NewRegion2 returns a Region over X and Y with Z pinned at perp.
func NewRegion2(lower, upper r2.Vec, perp float64) Region {
	return Region{
		Lower:    r3.Vec{X: lower.X, Y: lower.Y, Z: perp},
		Upper:    r3.Vec{X: upper.X, Y: upper.Y, Z: perp},
		Floating: 0b011,
	}
}

// Dim returns the number of floating axes (2 or 3 for the trees this
// package builds).
func (r Region) Dim() int { return bits.OnesCount8(r.Floating) }

// Axes returns the floating axis indices (subset of {0,1,2}) in
// ascending order. Index j in the returned slice corresponds to the
// j'th coordinate of any reduced-dimension object (QEF, NeighborIndex,
// solved vertex) derived from this region.
func (r Region) Axes() []int {
	axes := make([]int, 0, 3)
	for d := 0; d < 3; d++ {
		if r.Floating&(1<<d) != 0 {
			axes = append(axes, d)
		}
	}
	return axes
}

func (r Region) lo(axis int) float64 {
	switch axis {
	case 0:
		return r.Lower.X
	case 1:
		return r.Lower.Y
	default:
		return r.Lower.Z
	}
}

func (r Region) hi(axis int) float64 {
	switch axis {
	case 0:
		return r.Upper.X
	case 1:
		return r.Upper.Y
	default:
		return r.Upper.Z
	}
}

// Corner returns the position of CornerIndex i (i in [0, 2^Dim)) as a
// full 3D point, with non-floating axes pinned at their fixed value.
func (r Region) Corner(i CornerIndex) r3.Vec {
	p := r.Lower
	axes := r.Axes()
	for j, axis := range axes {
		if i&(1<<j) != 0 {
			setAxis(&p, axis, r.hi(axis))
		} else {
			setAxis(&p, axis, r.lo(axis))
		}
	}
	return p
}

func setAxis(v *r3.Vec, axis int, val float64) {
	switch axis {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
}

// Bisect splits a region into 2^Dim children by bisecting every
// floating axis. Child index i uses the same corner-index convention as
// Corner and CornerIndex: bit j of i selects the high (1) or low (0)
// half along the j'th floating axis.
func (r Region) Bisect() []Region {
	axes := r.Axes()
	n := 1 << len(axes)
	mid := r3.Scale(0.5, r3.Add(r.Lower, r.Upper))
	children := make([]Region, n)
	for i := 0; i < n; i++ {
		c := r
		for j, axis := range axes {
			m := axisOf(mid, axis)
			if i&(1<<j) != 0 {
				setAxis(&c.Lower, axis, m)
			} else {
				setAxis(&c.Upper, axis, m)
			}
		}
		children[i] = c
	}
	return children
}

func axisOf(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Diagonal returns the Euclidean length of the region's diagonal over
// its floating axes, used by Build to decide when to terminate
// recursion against MinFeature.
func (r Region) Diagonal() float64 {
	d := r3.Sub(r.Upper, r.Lower)
	return r3.Norm(d)
}

// Subspace returns the region of dimension ni.Dimension(dim) obtained
// by fixing every axis that ni marks non-floating to its Lower or Upper
// bound (per ni.Pos), and keeping the bounds of every axis ni marks
// floating. dim must equal r.Dim(). The axis order of the result
// follows r.Axes() restricted to ni's floating axes.
func (r Region) Subspace(ni NeighborIndex) Region {
	dim := r.Dim()
	axes := r.Axes()
	out := Region{}
	var outAxes []int
	for j, axis := range axes {
		if ni.axisFloating(dim, j) {
			outAxes = append(outAxes, axis)
		}
	}
	out.Floating = 0
	for _, axis := range outAxes {
		out.Floating |= 1 << axis
	}
	out.Lower, out.Upper = r.Lower, r.Upper
	for j, axis := range axes {
		if !ni.axisFloating(dim, j) {
			if ni.axisPos(dim, j) {
				setAxis(&out.Lower, axis, r.hi(axis))
				setAxis(&out.Upper, axis, r.hi(axis))
			} else {
				setAxis(&out.Lower, axis, r.lo(axis))
				setAxis(&out.Upper, axis, r.lo(axis))
			}
		}
	}
	return out
}

// Contains reports whether p lies within the region's floating-axis
// bounds, within tol.
func (r Region) Contains(p r3.Vec, tol float64) bool {
	for _, axis := range r.Axes() {
		v := axisOf(p, axis)
		if v < r.lo(axis)-tol || v > r.hi(axis)+tol {
			return false
		}
	}
	return true
}

// Valid reports whether Lower <= Upper componentwise on every floating
// axis.
func (r Region) Valid() bool {
	for _, axis := range r.Axes() {
		if r.lo(axis) > r.hi(axis) {
			return false
		}
	}
	return true
}
