package xtree

// BatchSize is the number of samples an Evaluator's array calls are
// expected to accept per pass, mirroring libfive's ArrayEvaluator::N
// (ao/include/ao/eval/eval_array.hpp). Callers batching corner
// evaluation must not exceed this per call.
const BatchSize = 256

// Tape is an opaque handle to a (possibly narrowed) evaluation
// program. The zero value denotes "no narrowing yet, use the original
// program." Evaluators that don't support narrowing can ignore it.
type Tape interface{}

// Evaluator is the capability bundle a build consumes to sample the
// implicit function f. It is deliberately the only seam between this
// package and the primitive/expression-tree machinery: per spec.md §1,
// constructing f and implementing these methods (point, array,
// interval, derivative, feature evaluation) is out of this kernel's
// scope. Implementations are assumed thread-unsafe; Build clones one
// per worker via Clone.
type Evaluator interface {
	// Interval evaluates f's range over the box [lower, upper] (always
	// a full 3D box; degenerate axes carry lower==upper). It returns
	// the classification and a (possibly narrowed) tape to use for
	// recursion inside that box.
	Interval(lower, upper [3]float64, tape Tape) (Interval, Tape)

	// IsSafe reports whether the most recent Interval call's result can
	// be trusted (false signals overflow/NaN in interval arithmetic;
	// the caller must degrade to Ambiguous — spec.md's EvaluatorUnsafe).
	IsSafe() bool

	// ArraySet stores point p in evaluation slot i (i < BatchSize) for
	// the next ArrayValues/ArrayDerivs/ArrayAmbiguous call.
	ArraySet(p [3]float64, i int)
	// ArrayValues returns f at the first n points set via ArraySet.
	ArrayValues(n int, tape Tape) []float64
	// ArrayDerivs returns (∇f, f) at the first n points set via
	// ArraySet.
	ArrayDerivs(n int, tape Tape) [][4]float64
	// ArrayAmbiguous reports, for each of the first n points, whether
	// multiple surface features meet there (∇f is not well defined).
	ArrayAmbiguous(n int, tape Tape) []bool

	// Features enumerates every one-sided gradient of f at p, used
	// when ArrayAmbiguous flags a point.
	Features(p [3]float64, tape Tape) [][3]float64
	// IsInside answers containment at points where f(p) == 0 exactly,
	// where the sign of f alone is not decisive.
	IsInside(p [3]float64, tape Tape) bool

	// SetVar updates a free variable's value, returning whether the
	// tree contains that variable at all.
	SetVar(id int, value float64) bool

	// Clone returns a worker-private copy that shares the evaluator's
	// immutable expression tree but owns its own batch buffers and
	// tape-narrowing stack (spec.md §5, §9).
	Clone() Evaluator
}
