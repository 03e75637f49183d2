package heap

import "testing"

// makeOld promotes n to the top old generation by running two full
// collections with n protected.
func makeOld(t *testing.T, h *Heap, n *Node) {
	t.Helper()
	h.Protect(n)
	h.GC()
	h.GC()
	h.Unprotect(1)
	if !n.Marked() || n.Generation() != numOldGenerations-1 {
		t.Fatalf("node not promoted: marked=%v gen=%d", n.Marked(), n.Generation())
	}
}

func TestWriteBarrierTracksOldToNew(t *testing.T) {
	h := newTestHeap(t)
	h.Collect() // prime the level countdowns so the collection below is level 0

	p := h.Protect(h.Cons(h.Nil, h.Nil))
	h.Unprotect(1)
	makeOld(t, h, p)
	h.Protect(p) // keep reachable for the level-0 collection below

	q := h.Cons(h.Nil, h.Nil) // fresh, unmarked
	h.SetCar(p, q)

	peg := h.classes[p.class].oldToNew(p.Generation())
	if !onList(p, peg) {
		t.Fatal("referrer not on its old-to-new list after SetCar")
	}

	// a young collection must keep q alive through the old-to-new rescan
	h.Collect()
	if !q.Marked() {
		t.Error("young referent reclaimed despite the barrier")
	}
	if p.Car() != q {
		t.Error("car lost after young collection")
	}
	h.Unprotect(1)
}

func TestBarrierNoopForYoungReferrer(t *testing.T) {
	h := newTestHeap(t)
	p := h.Cons(h.Nil, h.Nil)
	q := h.Cons(h.Nil, h.Nil)
	h.SetCar(p, q) // both new: no tracking needed
	for gen := 0; gen < numOldGenerations; gen++ {
		if onList(p, h.classes[0].oldToNew(gen)) {
			t.Fatal("young referrer landed on an old-to-new list")
		}
	}
}

func TestBarrierCoversEveryReferenceSetter(t *testing.T) {
	h := newTestHeap(t)
	h.Collect() // prime the level countdowns

	check := func(name string, mk func() *Node, set func(x, v *Node)) {
		x := mk()
		makeOld(t, h, x)
		h.Protect(x)
		v := h.Cons(h.Nil, h.Nil)
		set(x, v)
		if !onList(x, h.classes[x.class].oldToNew(x.Generation())) {
			t.Errorf("%s did not record the old-to-new edge", name)
		}
		h.Collect()
		if !v.Marked() {
			t.Errorf("%s: young referent lost", name)
		}
		h.Unprotect(1)
	}

	cell := func() *Node { return h.Cons(h.Nil, h.Nil) }
	check("SetCar", cell, func(x, v *Node) { h.SetCar(x, v) })
	check("SetCdr", cell, func(x, v *Node) { h.SetCdr(x, v) })
	check("SetTag", cell, func(x, v *Node) { h.SetTag(x, v) })
	check("SetAttrib", cell, func(x, v *Node) { h.SetAttrib(x, v) })
	check("SetFormals", func() *Node { return h.AllocNode(TypeClosure) },
		func(x, v *Node) { h.SetFormals(x, v) })
	check("SetSymValue", func() *Node { return h.newSymbol("s") },
		func(x, v *Node) { h.SetSymValue(x, v) })
	check("SetFrame", func() *Node { return h.NewEnvironment(h.Nil, h.Nil, h.GlobalEnv) },
		func(x, v *Node) { h.SetFrame(x, v) })
	check("SetPromValue", func() *Node { return h.NewPromise(h.Nil, h.GlobalEnv) },
		func(x, v *Node) { h.SetPromValue(x, v) })
	check("SetExternalPtrProtected", func() *Node { return h.NewExternalPtr(nil, h.Nil, h.Nil) },
		func(x, v *Node) { h.SetExternalPtrProtected(x, v) })

	check("SetVectorElt", func() *Node { return h.AllocVector(TypeVector, 3) },
		func(x, v *Node) { h.SetVectorElt(x, 1, v) })
	check("SetStringElt", func() *Node { return h.AllocVector(TypeString, 3) },
		func(x, v *Node) { h.SetStringElt(x, 1, v) })
}

func TestSetCarRejectsNil(t *testing.T) {
	h := newTestHeap(t)
	mustPanicKind(t, ErrBadValue, func() { h.SetCar(h.Nil, h.Nil) })
	mustPanicKind(t, ErrBadValue, func() { h.SetCdr(nil, h.Nil) })
}

func TestSetCadrFamily(t *testing.T) {
	h := newTestHeap(t)
	l := h.Protect(h.AllocList(5))
	v := h.NewCharString("v")
	h.SetCadr(l, v)
	if l.Cdr().Car() != v {
		t.Error("SetCadr stored in the wrong cell")
	}
	h.SetCaddr(l, v)
	if l.Cdr().Cdr().Car() != v {
		t.Error("SetCaddr stored in the wrong cell")
	}
	h.SetCad4r(l, v)
	if l.Cdr().Cdr().Cdr().Cdr().Car() != v {
		t.Error("SetCad4r stored in the wrong cell")
	}
	mustPanicKind(t, ErrBadValue, func() { h.SetCaddr(h.AllocList(1), v) })
	h.Unprotect(1)
}
