package xtree

import "testing"

func TestCornerNeighborRoundTrip(t *testing.T) {
	for c := CornerIndex(0); c < 8; c++ {
		ni := c.Neighbor(3)
		if ni.Dimension(3) != 0 {
			t.Errorf("corner %d: Dimension=%d, want 0", c, ni.Dimension(3))
		}
		if ni.Pos(3) != uint8(c) {
			t.Errorf("corner %d: Pos=%b, want %b", c, ni.Pos(3), uint8(c))
		}
	}
}

func TestNumSubspacesAndCorners(t *testing.T) {
	if NumSubspaces(3) != 27 {
		t.Errorf("NumSubspaces(3) = %d, want 27", NumSubspaces(3))
	}
	if NumCorners(3) != 8 {
		t.Errorf("NumCorners(3) = %d, want 8", NumCorners(3))
	}
	if NumSubspaces(2) != 9 {
		t.Errorf("NumSubspaces(2) = %d, want 9", NumSubspaces(2))
	}
}

func TestNeighborIndexFloatingFixedPartition(t *testing.T) {
	for s := 0; s < NumSubspaces(3); s++ {
		ni := NeighborIndex(s)
		if ni.Floating(3)&ni.Fixed(3) != 0 {
			t.Errorf("subspace %d: floating/fixed overlap", s)
		}
		if ni.Floating(3)|ni.Fixed(3) != 0b111 {
			t.Errorf("subspace %d: floating|fixed = %b, want 111", s, ni.Floating(3)|ni.Fixed(3))
		}
	}
}

func TestContainsBodyContainsEverything(t *testing.T) {
	body := bodyNeighborIndex(3)
	for s := 0; s < NumSubspaces(3); s++ {
		if !body.Contains(3, NeighborIndex(s)) {
			t.Errorf("body should contain subspace %d", s)
		}
	}
}

func TestContainsRejectsDifferentFixedSide(t *testing.T) {
	// Corner (1,0,0) should not "contain" corner (0,0,0).
	a := NeighborFromPosFloating(3, 0b001, 0)
	b := NeighborFromPosFloating(3, 0b000, 0)
	if a.Contains(3, b) {
		t.Errorf("corner (1,0,0) should not contain corner (0,0,0)")
	}
}

func TestContainsAcceptsMatchingFixedSide(t *testing.T) {
	// The high-X face (X fixed high, Y and Z floating) should contain
	// the corner where X, Y, Z are all high.
	face := NeighborFromPosFloating(3, 0b001, 0b110)
	corner := NeighborFromPosFloating(3, 0b111, 0)
	if !face.Contains(3, corner) {
		t.Errorf("high-X face should contain high corner")
	}
}
