package xtree

import "errors"

// Sentinel errors surfaced at build entry. Everything local to a cell
// — numeric degeneracy, evaluator overflow, cooperative cancellation —
// is absorbed into tree state and never returned from Build.
var (
	// ErrInvalidRegion is returned when a build's root Region has
	// lower > upper on some axis, or MinFeature <= 0.
	ErrInvalidRegion = errors.New("xtree: invalid region or min feature size")
)

// IsInvalidRegion reports whether err is (or wraps) ErrInvalidRegion.
func IsInvalidRegion(err error) bool { return errors.Is(err, ErrInvalidRegion) }
