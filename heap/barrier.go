package heap

// The write barrier. Every mutation of a heap-stored reference field must
// route through checkOldToNew so the collector learns about references from
// older nodes to younger ones before the next partial collection. Reads
// never need the barrier.

// isOlder reports whether x is known to be in an older generation than y.
func isOlder(x, y *Node) bool {
	return x.mark && (!y.mark || x.gen > y.gen)
}

// isYoungerThanGen reports whether y is younger than generation gen.
func isYoungerThanGen(y *Node, gen int) bool {
	return !y.mark || int(y.gen) < gen
}

// checkOldToNew moves x onto its generation's old-to-new list when it is
// about to hold a reference to the younger y. The node is rescanned at the
// next collection that includes its generation.
func (h *Heap) checkOldToNew(x, y *Node) {
	if isOlder(x, y) {
		unsnap(x)
		snap(x, h.classes[x.class].oldToNew(int(x.gen)))
	}
}

// SetAttrib installs the attribute list of x.
func (h *Heap) SetAttrib(x, v *Node) {
	h.checkOldToNew(x, v)
	x.attrib = v
}

// SetTag installs the tag reference of a list cell.
func (h *Heap) SetTag(x, v *Node) {
	h.checkOldToNew(x, v)
	x.tag = v
}

// SetCar replaces the car of a list cell and returns the new value.
func (h *Heap) SetCar(x, y *Node) *Node {
	if x == nil || x == h.Nil {
		fail(ErrBadValue, "bad value")
	}
	h.checkOldToNew(x, y)
	x.car = y
	return y
}

// SetCdr replaces the cdr of a list cell and returns the new value.
func (h *Heap) SetCdr(x, y *Node) *Node {
	if x == nil || x == h.Nil {
		fail(ErrBadValue, "bad value")
	}
	h.checkOldToNew(x, y)
	x.cdr = y
	return y
}

func (h *Heap) nthCdr(x *Node, n int) *Node {
	cell := x
	for i := 0; i < n; i++ {
		if cell == nil || cell == h.Nil {
			fail(ErrBadValue, "bad value")
		}
		cell = cell.cdr
	}
	if cell == nil || cell == h.Nil {
		fail(ErrBadValue, "bad value")
	}
	return cell
}

// SetCadr through SetCad4r replace the car of the nth cell of a list.
func (h *Heap) SetCadr(x, y *Node) *Node   { return h.setCarAt(x, 1, y) }
func (h *Heap) SetCaddr(x, y *Node) *Node  { return h.setCarAt(x, 2, y) }
func (h *Heap) SetCadddr(x, y *Node) *Node { return h.setCarAt(x, 3, y) }
func (h *Heap) SetCad4r(x, y *Node) *Node  { return h.setCarAt(x, 4, y) }

func (h *Heap) setCarAt(x *Node, n int, y *Node) *Node {
	cell := h.nthCdr(x, n)
	h.checkOldToNew(cell, y)
	cell.car = y
	return y
}

// Closure field setters.
func (h *Heap) SetFormals(x, v *Node) {
	h.checkOldToNew(x, v)
	x.car = v
}
func (h *Heap) SetBody(x, v *Node) {
	h.checkOldToNew(x, v)
	x.cdr = v
}
func (h *Heap) SetCloEnv(x, v *Node) {
	h.checkOldToNew(x, v)
	x.tag = v
}

// Symbol field setters.
func (h *Heap) SetPrintName(x, v *Node) {
	h.checkOldToNew(x, v)
	x.car = v
}
func (h *Heap) SetSymValue(x, v *Node) {
	h.checkOldToNew(x, v)
	x.cdr = v
}
func (h *Heap) SetInternal(x, v *Node) {
	h.checkOldToNew(x, v)
	x.tag = v
}

// Environment field setters.
func (h *Heap) SetFrame(x, v *Node) {
	h.checkOldToNew(x, v)
	x.car = v
}
func (h *Heap) SetEnclos(x, v *Node) {
	h.checkOldToNew(x, v)
	x.cdr = v
}
func (h *Heap) SetHashTab(x, v *Node) {
	h.checkOldToNew(x, v)
	x.tag = v
}

// Promise field setters.
func (h *Heap) SetPromValue(x, v *Node) {
	h.checkOldToNew(x, v)
	x.car = v
}
func (h *Heap) SetPromExpr(x, v *Node) {
	h.checkOldToNew(x, v)
	x.cdr = v
}
func (h *Heap) SetPromEnv(x, v *Node) {
	h.checkOldToNew(x, v)
	x.tag = v
}

// SetStringElt stores a char reference into a string vector.
func (h *Heap) SetStringElt(x *Node, i int, v *Node) {
	h.checkOldToNew(x, v)
	x.ptrs[i] = v
}

// SetVectorElt stores a reference into a generic or expression vector.
func (h *Heap) SetVectorElt(x *Node, i int, v *Node) *Node {
	h.checkOldToNew(x, v)
	x.ptrs[i] = v
	return v
}

// External pointer reference setters.
func (h *Heap) SetExternalPtrTag(x, v *Node) {
	h.checkOldToNew(x, v)
	x.tag = v
}
func (h *Heap) SetExternalPtrProtected(x, v *Node) {
	h.checkOldToNew(x, v)
	x.cdr = v
}
