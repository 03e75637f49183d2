package heap

import "testing"

func TestProtectUnprotect(t *testing.T) {
	h := newTestHeap(t)
	a := h.Cons(h.Nil, h.Nil)
	if got := h.Protect(a); got != a {
		t.Error("Protect did not return its argument")
	}
	if h.ProtectStackTop() != 1 {
		t.Errorf("stack top = %d, want 1", h.ProtectStackTop())
	}
	h.Unprotect(1)
	if h.ProtectStackTop() != 0 {
		t.Errorf("stack top = %d after unprotect", h.ProtectStackTop())
	}
}

func TestProtectOverflow(t *testing.T) {
	h := New(Config{NSize: 2000, VSize: 1 << 20, ProtectStackSize: 8})
	for i := 0; i < 8; i++ {
		h.Protect(h.Nil)
	}
	mustPanicKind(t, ErrProtectOverflow, func() { h.Protect(h.Nil) })
}

func TestUnprotectImbalance(t *testing.T) {
	h := newTestHeap(t)
	mustPanicKind(t, ErrProtectImbalance, func() { h.Unprotect(1) })
}

func TestUnprotectPtr(t *testing.T) {
	h := newTestHeap(t)
	a := h.Protect(h.Cons(h.Nil, h.Nil))
	b := h.Protect(h.Cons(h.Nil, h.Nil))
	c := h.Protect(h.Cons(h.Nil, h.Nil))

	h.UnprotectPtr(b)
	if h.ProtectStackTop() != 2 {
		t.Fatalf("stack top = %d, want 2", h.ProtectStackTop())
	}
	if h.ppStack[0] != a || h.ppStack[1] != c {
		t.Error("UnprotectPtr did not close the gap")
	}

	mustPanicKind(t, ErrNotFound, func() { h.UnprotectPtr(b) })
	h.Unprotect(2)
}

func TestReprotect(t *testing.T) {
	h := newTestHeap(t)
	a := h.Cons(h.Nil, h.Nil)
	b := h.Cons(a, h.Nil)
	var pi ProtectIndex
	h.ProtectWithIndex(a, &pi)
	h.Reprotect(b, pi)
	if h.ppStack[pi] != b {
		t.Error("Reprotect did not replace the slot")
	}

	// only b keeps the pair alive now
	h.GC()
	if !b.Marked() || !a.Marked() {
		t.Error("reprotected chain not kept alive")
	}
	h.Unprotect(1)
}

func TestPreserveAndRelease(t *testing.T) {
	h := newTestHeap(t)
	a := h.Cons(h.Nil, h.Nil)
	b := h.Cons(h.Nil, h.Nil)
	h.PreserveObject(a)
	h.PreserveObject(b)

	h.GC()
	if !a.Marked() || !b.Marked() {
		t.Fatal("preserved objects not kept alive")
	}

	h.ReleaseObject(a)
	h.GC()
	if a.Marked() {
		t.Error("released object still live")
	}
	if !b.Marked() {
		t.Error("release removed the wrong entry")
	}
	h.ReleaseObject(b)
}

func TestTransientStackScoping(t *testing.T) {
	h := newTestHeap(t)

	vmax := h.VmaxGet()
	p := h.AllocRaw(16, 1)
	if len(p) != 16 {
		t.Fatalf("AllocRaw returned %d bytes", len(p))
	}
	p[0] = 0xab

	// the buffer's backing node survives collections while in scope
	h.GC()
	if p[0] != 0xab {
		t.Error("transient buffer corrupted by collection")
	}
	inScope := h.vStack
	if inScope == h.Nil || !inScope.Marked() {
		t.Error("transient stack head not traced as a root")
	}

	h.VmaxSet(vmax)
	h.GC()
	if inScope.Marked() {
		t.Error("out-of-scope transient buffer still live")
	}

	if h.AllocRaw(0, 8) != nil {
		t.Error("empty transient request did not return nil")
	}
}

func TestTransientZeroAndRealloc(t *testing.T) {
	h := newTestHeap(t)
	vmax := h.VmaxGet()

	p := h.AllocRawZeroed(8, 1)
	for i, b := range p {
		if b != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
	copy(p, "abc")

	q := h.ReallocRaw(p, 16, 8, 1)
	if string(q[:3]) != "abc" {
		t.Error("ReallocRaw lost contents")
	}
	for i := 8; i < 16; i++ {
		if q[i] != 0 {
			t.Fatalf("grown tail byte %d not zeroed", i)
		}
	}
	if got := h.ReallocRaw(q, 4, 16, 1); len(got) != len(q) {
		t.Error("shrinking realloc is not a no-op")
	}
	h.VmaxSet(vmax)
}

func TestBufferTable(t *testing.T) {
	h := newTestHeap(t)
	a := h.AcquireBuffer(4, 8)
	b := h.AcquireBuffer(2, 8)
	if len(a) != 32 || len(b) != 16 {
		t.Fatalf("buffer sizes %d/%d", len(a), len(b))
	}
	h.FreeBuffer(a)
	mustPanicKind(t, ErrNotFound, func() { h.FreeBuffer(a) })
	h.ResetBuffers()
	for _, buf := range h.cBuffers {
		if buf != nil {
			t.Error("ResetBuffers left a registered buffer")
		}
	}
}
