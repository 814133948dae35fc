package xtree

import "testing"

type counter struct{ resets int }

func (c *counter) reset() { c.resets++ }

func TestPoolReusesFreedObjects(t *testing.T) {
	allocs := 0
	p := newPool(func() *counter {
		allocs++
		return &counter{}
	})
	a := p.get()
	p.put(a)
	b := p.get()
	if a != b {
		t.Errorf("expected put object to be reused, got a different pointer")
	}
	if allocs != 1 {
		t.Errorf("allocs = %d, want 1", allocs)
	}
}

func TestPoolOutstandingTracksLiveObjects(t *testing.T) {
	p := newPool(func() *counter { return &counter{} })
	if p.outstanding() != 0 {
		t.Fatalf("fresh pool outstanding = %d, want 0", p.outstanding())
	}
	a := p.get()
	b := p.get()
	if got := p.outstanding(); got != 2 {
		t.Fatalf("outstanding = %d, want 2", got)
	}
	p.put(a)
	if got := p.outstanding(); got != 1 {
		t.Fatalf("outstanding = %d, want 1", got)
	}
	p.put(b)
	if got := p.outstanding(); got != 0 {
		t.Fatalf("outstanding = %d, want 0", got)
	}
}

func TestPoolPutResetsObject(t *testing.T) {
	p := newPool(func() *counter { return &counter{} })
	a := p.get()
	p.put(a)
	if a.resets != 1 {
		t.Errorf("resets = %d, want 1", a.resets)
	}
}

func TestSubspaceRefcounting(t *testing.T) {
	s := &subspace{}
	s.borrow()
	s.borrow()
	if s.release() {
		t.Fatalf("released after 2 borrows and 1 release, should still be live")
	}
	if !s.release() {
		t.Fatalf("should report released after matching borrow/release counts")
	}
}
