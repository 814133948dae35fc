package xtree

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// eigenvalueCutoff is the threshold (on eigenvalues of AtA, equivalently
// squared singular values of A) below which a direction is treated as
// numerically unconstrained and collapsed to the minimum-norm solution.
// See spec.md §4.2.
const eigenvalueCutoff = 1e-10

// QEF accumulates weighted (position, normal, value) samples of tangent
// plane constraints n·(x-p) = v and solves the resulting quadratic
// error function for a bounded minimizer. N is the number of free
// variables this particular QEF value currently has; it starts at a
// leaf's ambient dimension (2 or 3) and shrinks every time Sub or the
// internal active-set recursion in SolveBounded fixes an axis.
//
// Every per-subspace QEF stored on a leaf (spec.md's SimplexLeafSubspace)
// is a full-ambient-dimension QEF regardless of the subspace's own
// topological dimension; only the transient accumulator built while
// solving a subspace's vertex is reduced via Sub to that subspace's
// floating-axis count. This mirrors libfive's QEF<N>, which is always
// templated on the tree's dimension, never the subspace's.
type QEF struct {
	N      int
	AtA    [3][3]float64
	Atb    [3]float64
	Btb    float64
	SumPos [3]float64
	SumVal float64
	Count  int
}

// NewQEF returns a zeroed accumulator over n free variables.
func NewQEF(n int) QEF { return QEF{N: n} }

// Insert accumulates a tangent-plane constraint normal·(x-p) = v. If
// normal is not finite on any component it is replaced with the zero
// vector, so the sample contributes position-only inertia (spec.md
// §4.2).
func (q *QEF) Insert(p, normal [3]float64, v float64) {
	n := normal
	for d := 0; d < q.N; d++ {
		if !isFinite(n[d]) {
			n = [3]float64{}
			break
		}
	}
	b := v
	for d := 0; d < q.N; d++ {
		b += n[d] * p[d]
	}
	for i := 0; i < q.N; i++ {
		q.Atb[i] += n[i] * b
		for j := 0; j < q.N; j++ {
			q.AtA[i][j] += n[i] * n[j]
		}
		q.SumPos[i] += p[i]
	}
	q.Btb += b * b
	q.SumVal += v
	q.Count++
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Add returns the additive combination of q and o, which must have the
// same N. Addition is commutative bit-for-bit, since each field is a
// single componentwise floating point sum. It is not bit-for-bit
// associative: combining three or more QEFs can round differently
// depending on the grouping.
func (q QEF) Add(o QEF) QEF {
	var out QEF
	out.N = q.N
	for i := 0; i < 3; i++ {
		out.Atb[i] = q.Atb[i] + o.Atb[i]
		out.SumPos[i] = q.SumPos[i] + o.SumPos[i]
		for j := 0; j < 3; j++ {
			out.AtA[i][j] = q.AtA[i][j] + o.AtA[i][j]
		}
	}
	out.Btb = q.Btb + o.Btb
	out.SumVal = q.SumVal + o.SumVal
	out.Count = q.Count + o.Count
	return out
}

// mean returns the sample-mean position over q's own N axes, falling
// back to zero when there are no samples (NumericDegeneracy, absorbed
// per spec.md §7).
func (q QEF) mean() [3]float64 {
	if q.Count == 0 {
		return [3]float64{}
	}
	var m [3]float64
	for i := 0; i < q.N; i++ {
		m[i] = q.SumPos[i] / float64(q.Count)
	}
	return m
}

// Sub projects q onto the floating axes named by mask (a bitmask over
// q's own axes 0..N-1), fixing the complementary axes at the sample
// mean. This is the operation libfive calls QEF<N>::sub<mask>().
func (q QEF) Sub(mask uint32) QEF {
	return q.project(mask, q.mean())
}

// project is the general form of Sub: it fixes the axes absent from
// mask at the explicit values in fixedAt (only entries for fixed axes
// are consulted), returning a QEF over the floating axes alone.
func (q QEF) project(mask uint32, fixedAt [3]float64) QEF {
	var floating, fixed []int
	for d := 0; d < q.N; d++ {
		if mask&(1<<d) != 0 {
			floating = append(floating, d)
		} else {
			fixed = append(fixed, d)
		}
	}
	out := NewQEF(len(floating))
	for j1, a1 := range floating {
		for j2, a2 := range floating {
			out.AtA[j1][j2] = q.AtA[a1][a2]
		}
		cross := 0.0
		for _, c := range fixed {
			cross += q.AtA[a1][c] * fixedAt[c]
		}
		out.Atb[j1] = q.Atb[a1] - cross
		out.SumPos[j1] = q.SumPos[a1]
	}
	btb := q.Btb
	for _, c := range fixed {
		btb -= 2 * fixedAt[c] * q.Atb[c]
	}
	for _, c1 := range fixed {
		for _, c2 := range fixed {
			btb += fixedAt[c1] * q.AtA[c1][c2] * fixedAt[c2]
		}
	}
	out.Btb = btb
	out.SumVal = q.SumVal
	out.Count = q.Count
	return out
}

// SolveBounded returns the minimizer of the quadratic form clipped to
// the box [lower, upper] (both length q.N, in q's own axis order),
// along with the residual error at that point. Rank-deficient
// directions (eigenvalues of AtA below eigenvalueCutoff) collapse to
// the minimum-norm solution around the sample mean; minimizers that
// violate a bound are pinned to that bound and re-solved in the
// resulting lower-dimensional subspace (spec.md §4.2).
func (q QEF) SolveBounded(lower, upper []float64) (pos []float64, resid float64) {
	n := q.N
	if n == 0 {
		return nil, q.Btb
	}
	mean := q.mean()
	x := q.unconstrainedMin(mean)

	violated := -1
	var bound float64
	for j := 0; j < n; j++ {
		if x[j] < lower[j] {
			violated, bound = j, lower[j]
			break
		}
		if x[j] > upper[j] {
			violated, bound = j, upper[j]
			break
		}
	}
	if violated < 0 {
		return x, q.residual(x)
	}

	var fixedAt [3]float64
	fixedAt[violated] = bound
	var mask uint32
	for d := 0; d < n; d++ {
		if d != violated {
			mask |= 1 << d
		}
	}
	reduced := q.project(mask, fixedAt)

	subLower := make([]float64, 0, n-1)
	subUpper := make([]float64, 0, n-1)
	for d := 0; d < n; d++ {
		if d != violated {
			subLower = append(subLower, lower[d])
			subUpper = append(subUpper, upper[d])
		}
	}
	subPos, _ := reduced.SolveBounded(subLower, subUpper)

	full := make([]float64, n)
	k := 0
	for d := 0; d < n; d++ {
		if d == violated {
			full[d] = bound
		} else {
			full[d] = subPos[k]
			k++
		}
	}
	return full, q.residual(full)
}

// residual evaluates x^T AtA x - 2 x^T Atb + Btb, the QEF's value at x.
func (q QEF) residual(x []float64) float64 {
	e := q.Btb
	for i := 0; i < q.N; i++ {
		e -= 2 * x[i] * q.Atb[i]
		for j := 0; j < q.N; j++ {
			e += x[i] * q.AtA[i][j] * x[j]
		}
	}
	if e < 0 {
		e = 0
	}
	return e
}

// unconstrainedMin finds the minimum-norm solution of AtA*y = Atb -
// AtA*mean around mean, discarding eigendirections of AtA whose
// eigenvalue falls below eigenvalueCutoff.
func (q QEF) unconstrainedMin(mean [3]float64) []float64 {
	n := q.N
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, q.AtA[i][j])
		}
	}
	var eig mat.EigenSym
	ok := eig.Factorize(sym, true)

	shifted := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v := q.Atb[i]
		for j := 0; j < n; j++ {
			v -= q.AtA[i][j] * mean[j]
		}
		shifted.SetVec(i, v)
	}

	x := make([]float64, n)
	if !ok {
		copy(x, mean[:n])
		return x
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	y := mat.NewVecDense(n, nil)
	for k := 0; k < n; k++ {
		lambda := values[k]
		if lambda < eigenvalueCutoff {
			continue
		}
		var dot float64
		for i := 0; i < n; i++ {
			dot += vectors.At(i, k) * shifted.AtVec(i)
		}
		coeff := dot / lambda
		for i := 0; i < n; i++ {
			y.SetVec(i, y.AtVec(i)+coeff*vectors.At(i, k))
		}
	}
	for i := 0; i < n; i++ {
		x[i] = mean[i] + y.AtVec(i)
	}
	return x
}
