package xtree

import "math/bits"

// CornerIndex addresses one of a cell's 2^dim corners: bit j selects
// the high (1) or low (0) side of the cell's j'th floating axis.
type CornerIndex uint8

// NeighborIndex addresses one of a cell's 3^dim topological subspaces
// (corners, edges, faces, body in 3D). Internally it is a base-3
// number with one digit per floating axis of the cell: 0 = low side
// fixed, 2 = high side fixed, 1 = floating. This mirrors the
// value-in-[0,3^N) encoding from spec.md §3; Go has no const-generic
// array length, so dim is threaded through explicitly instead of being
// a compile-time template parameter.
type NeighborIndex uint8

var pow3 = [...]int{1, 3, 9, 27}

// digit returns the base-3 digit of n at axis position j (j in [0,dim)).
func (n NeighborIndex) digit(j int) int {
	return (int(n) / pow3[j]) % 3
}

// axisFloating reports whether position j (in [0,dim)) is floating.
func (n NeighborIndex) axisFloating(dim, j int) bool {
	return n.digit(j) == 1
}

// axisPos reports whether the fixed position j is on the high side.
// Meaningless if axisFloating(dim, j) is true.
func (n NeighborIndex) axisPos(dim, j int) bool {
	return n.digit(j) == 2
}

// Floating returns the bitmask (bit j set iff axis j floats) of a
// subspace described relative to a dim-dimensional cell.
func (n NeighborIndex) Floating(dim int) uint8 {
	var mask uint8
	for j := 0; j < dim; j++ {
		if n.axisFloating(dim, j) {
			mask |= 1 << j
		}
	}
	return mask
}

// Pos returns the bitmask of fixed axes set to their high side.
func (n NeighborIndex) Pos(dim int) uint8 {
	var mask uint8
	for j := 0; j < dim; j++ {
		if n.axisPos(dim, j) {
			mask |= 1 << j
		}
	}
	return mask
}

// Fixed returns the complement of Floating over the first dim bits.
func (n NeighborIndex) Fixed(dim int) uint8 {
	full := uint8(1<<dim) - 1
	return full &^ n.Floating(dim)
}

// Dimension returns the number of floating axes of this subspace.
func (n NeighborIndex) Dimension(dim int) int {
	return bits.OnesCount8(n.Floating(dim))
}

// Contains reports whether every axis fixed in n is fixed identically
// (same side) in other. This is the sharing-compatibility test used
// when a leaf borrows a subspace from a coarser neighbor.
func (n NeighborIndex) Contains(dim int, other NeighborIndex) bool {
	for j := 0; j < dim; j++ {
		if !n.axisFloating(dim, j) {
			if other.axisFloating(dim, j) || n.axisPos(dim, j) != other.axisPos(dim, j) {
				return false
			}
		}
	}
	return true
}

// NeighborFromPosFloating builds a NeighborIndex from explicit pos and
// floating bitmasks (each restricted to the low dim bits).
func NeighborFromPosFloating(dim int, pos, floating uint8) NeighborIndex {
	var v int
	for j := 0; j < dim; j++ {
		var digit int
		switch {
		case floating&(1<<j) != 0:
			digit = 1
		case pos&(1<<j) != 0:
			digit = 2
		default:
			digit = 0
		}
		v += digit * pow3[j]
	}
	return NeighborIndex(v)
}

// Neighbor returns the all-fixed NeighborIndex for this corner: digit j
// is 2 if bit j of c is set (high side), else 0.
func (c CornerIndex) Neighbor(dim int) NeighborIndex {
	return NeighborFromPosFloating(dim, uint8(c), 0)
}

// NumSubspaces returns 3^dim, the number of topological subspaces of a
// dim-dimensional cell.
func NumSubspaces(dim int) int { return pow3[dim] }

// NumCorners returns 2^dim, the number of corners of a dim-dimensional
// cell.
func NumCorners(dim int) int { return 1 << dim }
