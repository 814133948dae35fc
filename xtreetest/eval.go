// Package xtreetest provides small, exact xtree.Evaluator
// implementations (sphere, axis-aligned box, union) used to exercise
// a build end to end in tests without pulling in a full expression
// evaluator, which is explicitly out of scope for the kernel itself.
package xtreetest

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	xtree "github.com/dtmfgold/libfive"
)

func toR3(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// box is a minimal axis-aligned bounding box. The fixtures below are the
// only code in this module that needs box arithmetic, so it lives here
// rather than as a general-purpose vector library no one else imports.
type box struct{ Min, Max r3.Vec }

func (a box) translate(v r3.Vec) box {
	return box{r3.Add(a.Min, v), r3.Add(a.Max, v)}
}

func (a box) vertices() [8]r3.Vec {
	return [8]r3.Vec{
		a.Min,
		{X: a.Min.X, Y: a.Min.Y, Z: a.Max.Z},
		{X: a.Min.X, Y: a.Max.Y, Z: a.Min.Z},
		{X: a.Min.X, Y: a.Max.Y, Z: a.Max.Z},
		{X: a.Max.X, Y: a.Min.Y, Z: a.Min.Z},
		{X: a.Max.X, Y: a.Min.Y, Z: a.Max.Z},
		{X: a.Max.X, Y: a.Max.Y, Z: a.Min.Z},
		a.Max,
	}
}

// minMaxDist2 returns the minimum and maximum dist*dist from p to the
// box; points within the box have minimum distance 0.
func (a box) minMaxDist2(p r3.Vec) (min, max float64) {
	a = a.translate(r3.Scale(-1, p))
	vs := a.vertices()
	minDist2, maxDist2 := r3.Norm2(vs[0]), r3.Norm2(vs[0])
	for _, v := range vs[1:] {
		d2 := r3.Norm2(v)
		minDist2 = math.Min(minDist2, d2)
		maxDist2 = math.Max(maxDist2, d2)
	}

	withinX := a.Min.X < 0 && a.Max.X > 0
	withinY := a.Min.Y < 0 && a.Max.Y > 0
	withinZ := a.Min.Z < 0 && a.Max.Z > 0
	if withinX && withinY && withinZ {
		minDist2 = 0
	} else {
		if withinX && withinY {
			d := math.Min(math.Abs(a.Max.Z), math.Abs(a.Min.Z))
			minDist2 = math.Min(minDist2, d*d)
		}
		if withinX && withinZ {
			d := math.Min(math.Abs(a.Max.Y), math.Abs(a.Min.Y))
			minDist2 = math.Min(minDist2, d*d)
		}
		if withinY && withinZ {
			d := math.Min(math.Abs(a.Max.X), math.Abs(a.Min.X))
			minDist2 = math.Min(minDist2, d*d)
		}
	}
	return minDist2, maxDist2
}

func absElem(a r3.Vec) r3.Vec {
	return r3.Vec{X: math.Abs(a.X), Y: math.Abs(a.Y), Z: math.Abs(a.Z)}
}

func maxElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}

func maxComponent(a r3.Vec) float64 {
	return math.Max(a.Z, math.Max(a.X, a.Y))
}

// Sphere is the signed distance function of a ball of radius Radius
// centered at Center: f(p) = |p - Center| - Radius.
type Sphere struct {
	Center r3.Vec
	Radius float64
	pts    [xtree.BatchSize]r3.Vec
}

func NewSphere(center r3.Vec, radius float64) *Sphere {
	return &Sphere{Center: center, Radius: radius}
}

func (s *Sphere) Interval(lower, upper [3]float64, _ xtree.Tape) (xtree.Interval, xtree.Tape) {
	b := box{Min: toR3(lower), Max: toR3(upper)}
	minD2, maxD2 := b.minMaxDist2(s.Center)
	lo, hi := math.Sqrt(minD2)-s.Radius, math.Sqrt(maxD2)-s.Radius
	switch {
	case lo > 0:
		return xtree.Empty, nil
	case hi < 0:
		return xtree.Filled, nil
	default:
		return xtree.Ambiguous, nil
	}
}

func (s *Sphere) IsSafe() bool { return true }

func (s *Sphere) ArraySet(p [3]float64, i int) { s.pts[i] = toR3(p) }

func (s *Sphere) ArrayValues(n int, _ xtree.Tape) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = r3.Norm(r3.Sub(s.pts[i], s.Center)) - s.Radius
	}
	return out
}

func (s *Sphere) ArrayDerivs(n int, _ xtree.Tape) [][4]float64 {
	out := make([][4]float64, n)
	for i := 0; i < n; i++ {
		d := r3.Sub(s.pts[i], s.Center)
		dist := r3.Norm(d)
		if dist == 0 {
			out[i] = [4]float64{0, 0, 1, -s.Radius}
			continue
		}
		g := r3.Scale(1/dist, d)
		out[i] = [4]float64{g.X, g.Y, g.Z, dist - s.Radius}
	}
	return out
}

func (s *Sphere) ArrayAmbiguous(n int, _ xtree.Tape) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = s.pts[i] == s.Center
	}
	return out
}

func (s *Sphere) Features(p [3]float64, _ xtree.Tape) [][3]float64 {
	d := r3.Sub(toR3(p), s.Center)
	if r3.Norm(d) == 0 {
		return [][3]float64{{1, 0, 0}}
	}
	g := r3.Unit(d)
	return [][3]float64{{g.X, g.Y, g.Z}}
}

func (s *Sphere) IsInside(p [3]float64, _ xtree.Tape) bool {
	return r3.Norm(r3.Sub(toR3(p), s.Center)) < s.Radius
}

func (s *Sphere) SetVar(int, float64) bool { return false }

func (s *Sphere) Clone() xtree.Evaluator {
	c := *s
	return &c
}

// Box is the signed distance function of an axis-aligned box centered
// at Center with half-extents HalfSize, exercising the sharp-edge /
// multi-feature path through Features and ArrayAmbiguous that a
// smooth primitive like Sphere never touches.
type Box struct {
	Center, HalfSize r3.Vec
	pts              [xtree.BatchSize]r3.Vec
}

func NewBox(center, halfSize r3.Vec) *Box {
	return &Box{Center: center, HalfSize: halfSize}
}

func (b *Box) value(p r3.Vec) float64 {
	q := absElem(r3.Sub(p, b.Center))
	q = r3.Sub(q, b.HalfSize)
	outside := maxElem(q, r3.Vec{})
	return r3.Norm(outside) + math.Min(maxComponent(q), 0)
}

func (b *Box) sdfBox() box {
	return box{Min: r3.Sub(b.Center, b.HalfSize), Max: r3.Add(b.Center, b.HalfSize)}
}

func (b *Box) Interval(lower, upper [3]float64, _ xtree.Tape) (xtree.Interval, xtree.Tape) {
	cell := box{Min: toR3(lower), Max: toR3(upper)}
	sdf := b.sdfBox()
	disjoint := cell.Max.X < sdf.Min.X || cell.Min.X > sdf.Max.X ||
		cell.Max.Y < sdf.Min.Y || cell.Min.Y > sdf.Max.Y ||
		cell.Max.Z < sdf.Min.Z || cell.Min.Z > sdf.Max.Z
	if disjoint {
		return xtree.Empty, nil
	}
	contained := cell.Min.X >= sdf.Min.X && cell.Max.X <= sdf.Max.X &&
		cell.Min.Y >= sdf.Min.Y && cell.Max.Y <= sdf.Max.Y &&
		cell.Min.Z >= sdf.Min.Z && cell.Max.Z <= sdf.Max.Z
	if contained {
		return xtree.Filled, nil
	}
	return xtree.Ambiguous, nil
}

func (b *Box) IsSafe() bool { return true }

func (b *Box) ArraySet(p [3]float64, i int) { b.pts[i] = toR3(p) }

func (b *Box) ArrayValues(n int, _ xtree.Tape) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = b.value(b.pts[i])
	}
	return out
}

const boxGradEps = 1e-6

func (b *Box) ArrayDerivs(n int, _ xtree.Tape) [][4]float64 {
	out := make([][4]float64, n)
	for i := 0; i < n; i++ {
		p := b.pts[i]
		v := b.value(p)
		gx := (b.value(r3.Add(p, r3.Vec{X: boxGradEps})) - b.value(r3.Sub(p, r3.Vec{X: boxGradEps}))) / (2 * boxGradEps)
		gy := (b.value(r3.Add(p, r3.Vec{Y: boxGradEps})) - b.value(r3.Sub(p, r3.Vec{Y: boxGradEps}))) / (2 * boxGradEps)
		gz := (b.value(r3.Add(p, r3.Vec{Z: boxGradEps})) - b.value(r3.Sub(p, r3.Vec{Z: boxGradEps}))) / (2 * boxGradEps)
		out[i] = [4]float64{gx, gy, gz, v}
	}
	return out
}

// tiedFaces returns the outward unit normals of every face whose
// |q| component ties for the maximum within tol, i.e. the faces that
// meet at an edge or corner near p.
func (b *Box) tiedFaces(p r3.Vec, tol float64) [][3]float64 {
	d := r3.Sub(p, b.Center)
	q := r3.Sub(absElem(d), b.HalfSize)
	m := maxComponent(q)
	var out [][3]float64
	sign := func(x float64) float64 {
		if x < 0 {
			return -1
		}
		return 1
	}
	if math.Abs(q.X-m) <= tol {
		out = append(out, [3]float64{sign(d.X), 0, 0})
	}
	if math.Abs(q.Y-m) <= tol {
		out = append(out, [3]float64{0, sign(d.Y), 0})
	}
	if math.Abs(q.Z-m) <= tol {
		out = append(out, [3]float64{0, 0, sign(d.Z)})
	}
	if len(out) == 0 {
		out = append(out, [3]float64{sign(d.X), 0, 0})
	}
	return out
}

func (b *Box) ArrayAmbiguous(n int, _ xtree.Tape) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = len(b.tiedFaces(b.pts[i], boxGradEps*10)) > 1
	}
	return out
}

func (b *Box) Features(p [3]float64, _ xtree.Tape) [][3]float64 {
	return b.tiedFaces(toR3(p), boxGradEps*10)
}

func (b *Box) IsInside(p [3]float64, _ xtree.Tape) bool { return b.value(toR3(p)) < 0 }

func (b *Box) SetVar(int, float64) bool { return false }

func (b *Box) Clone() xtree.Evaluator {
	c := *b
	return &c
}

// Union is the signed distance function of the union (min) of two
// evaluators, ambiguous wherever their values nearly tie — the
// seam where dual contouring must consult both gradients.
type Union struct {
	A, B xtree.Evaluator
	pts  [xtree.BatchSize][3]float64
}

func NewUnion(a, b xtree.Evaluator) *Union { return &Union{A: a, B: b} }

func (u *Union) Interval(lower, upper [3]float64, tape xtree.Tape) (xtree.Interval, xtree.Tape) {
	sa, _ := u.A.Interval(lower, upper, tape)
	sb, _ := u.B.Interval(lower, upper, tape)
	if sa == xtree.Filled || sb == xtree.Filled {
		return xtree.Filled, nil
	}
	if sa == xtree.Empty && sb == xtree.Empty {
		return xtree.Empty, nil
	}
	return xtree.Ambiguous, nil
}

func (u *Union) IsSafe() bool { return u.A.IsSafe() && u.B.IsSafe() }

func (u *Union) ArraySet(p [3]float64, i int) {
	u.pts[i] = p
	u.A.ArraySet(p, i)
	u.B.ArraySet(p, i)
}

func (u *Union) ArrayValues(n int, tape xtree.Tape) []float64 {
	va, vb := u.A.ArrayValues(n, tape), u.B.ArrayValues(n, tape)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Min(va[i], vb[i])
	}
	return out
}

const unionTieEps = 1e-9

func (u *Union) ArrayDerivs(n int, tape xtree.Tape) [][4]float64 {
	da, db := u.A.ArrayDerivs(n, tape), u.B.ArrayDerivs(n, tape)
	out := make([][4]float64, n)
	for i := 0; i < n; i++ {
		if da[i][3] <= db[i][3] {
			out[i] = da[i]
		} else {
			out[i] = db[i]
		}
	}
	return out
}

func (u *Union) ArrayAmbiguous(n int, tape xtree.Tape) []bool {
	da, db := u.A.ArrayDerivs(n, tape), u.B.ArrayDerivs(n, tape)
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = math.Abs(da[i][3]-db[i][3]) <= unionTieEps
	}
	return out
}

func (u *Union) Features(p [3]float64, tape xtree.Tape) [][3]float64 {
	fa := u.A.Features(p, tape)
	fb := u.B.Features(p, tape)
	return append(append([][3]float64{}, fa...), fb...)
}

func (u *Union) IsInside(p [3]float64, tape xtree.Tape) bool {
	return u.A.IsInside(p, tape) || u.B.IsInside(p, tape)
}

func (u *Union) SetVar(id int, v float64) bool {
	return u.A.SetVar(id, v) || u.B.SetVar(id, v)
}

func (u *Union) Clone() xtree.Evaluator {
	return &Union{A: u.A.Clone(), B: u.B.Clone()}
}
