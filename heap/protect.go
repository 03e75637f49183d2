package heap

// The protect stack holds references owned by in-progress mutator
// operations; the collector enumerates it as a root set. Overflow and
// imbalance are fatal, and the overflow path must not itself allocate.

// ProtectIndex names a protect stack slot for Reprotect.
type ProtectIndex int

// Protect pushes x and returns it.
func (h *Heap) Protect(x *Node) *Node {
	if h.ppStackTop >= len(h.ppStack) {
		fail(ErrProtectOverflow, "protect(): stack overflow")
	}
	h.ppStack[h.ppStackTop] = x
	h.ppStackTop++
	return x
}

// Unprotect pops the top k entries.
func (h *Heap) Unprotect(k int) {
	if h.ppStackTop < k {
		fail(ErrProtectImbalance, "unprotect(): stack imbalance")
	}
	h.ppStackTop -= k
}

// UnprotectPtr removes the most recent occurrence of x from anywhere on the
// stack, closing the gap.
func (h *Heap) UnprotectPtr(x *Node) {
	i := h.ppStackTop
	for {
		if i == 0 {
			fail(ErrNotFound, "unprotect_ptr: pointer not found")
		}
		i--
		if h.ppStack[i] == x {
			break
		}
	}
	copy(h.ppStack[i:h.ppStackTop-1], h.ppStack[i+1:h.ppStackTop])
	h.ppStackTop--
}

// ProtectWithIndex pushes x and reports the slot it landed in.
func (h *Heap) ProtectWithIndex(x *Node, pi *ProtectIndex) {
	h.Protect(x)
	*pi = ProtectIndex(h.ppStackTop - 1)
}

// Reprotect replaces the entry at slot i.
func (h *Heap) Reprotect(x *Node, i ProtectIndex) {
	h.ppStack[i] = x
}

// ProtectStackTop returns the current stack depth. Paired with
// RestoreProtectStack it gives scoped cleanup on non-local exits.
func (h *Heap) ProtectStackTop() int { return h.ppStackTop }

// RestoreProtectStack resets the stack depth to a previously saved value.
func (h *Heap) RestoreProtectStack(top int) {
	if top < 0 || top > h.ppStackTop {
		fail(ErrProtectImbalance, "unprotect(): stack imbalance")
	}
	h.ppStackTop = top
}

// The precious list keeps objects alive across collections when they are
// not assigned anywhere the collector can see.

// PreserveObject adds x to the precious list.
func (h *Heap) PreserveObject(x *Node) {
	h.precious = h.Cons(x, h.precious)
}

// ReleaseObject removes the first occurrence of x from the precious list.
func (h *Heap) ReleaseObject(x *Node) {
	h.precious = h.recursiveRelease(x, h.precious)
}

func (h *Heap) recursiveRelease(x, list *Node) *Node {
	if list != h.Nil {
		if x == list.car {
			return list.cdr
		}
		h.SetCdr(list, h.recursiveRelease(x, list.cdr))
	}
	return list
}

// Transient allocation stack. Since heap memory never moves, raw buffers
// are allocated as character vectors and chained through the attribute
// reference from a collector-traced stack head; VmaxGet and VmaxSet
// bracket a scope so everything allocated inside it is released on exit.

// VmaxGet saves the transient stack top.
func (h *Heap) VmaxGet() *Node { return h.vStack }

// VmaxSet restores a previously saved transient stack top.
func (h *Heap) VmaxSet(v *Node) {
	if v == nil {
		v = h.Nil
	}
	h.vStack = v
}

// AllocRaw returns an n*eltsize byte scratch buffer that lives until the
// enclosing VmaxGet/VmaxSet scope is left. Returns nil for empty requests.
func (h *Heap) AllocRaw(n, eltsize int) []byte {
	size := n * eltsize
	if size <= 0 {
		return nil
	}
	s := h.AllocString(size)
	s.attrib = h.vStack // direct store: s is fresh and the stack is a root
	h.vStack = s
	return s.bytes[:size]
}

// AllocRawZeroed is AllocRaw with the buffer cleared.
func (h *Heap) AllocRawZeroed(n, eltsize int) []byte {
	p := h.AllocRaw(n, eltsize)
	for i := range p {
		p[i] = 0
	}
	return p
}

// ReallocRaw grows a transient buffer from old to n elements, copying the
// old contents and zeroing the tail. Shrinking is a no-op.
func (h *Heap) ReallocRaw(p []byte, n, old, eltsize int) []byte {
	if n <= old {
		return p
	}
	q := h.AllocRaw(n, eltsize)
	copy(q, p[:old*eltsize])
	for i := old * eltsize; i < n*eltsize; i++ {
		q[i] = 0
	}
	return q
}

// Scoped C-buffer table: raw buffers acquired outside the heap proper,
// freed individually or en masse during error recovery.

// AcquireBuffer registers and returns an n*eltsize byte buffer.
func (h *Heap) AcquireBuffer(n, eltsize int) []byte {
	for i, b := range h.cBuffers {
		if b == nil {
			h.cBuffers[i] = make([]byte, n*eltsize)
			return h.cBuffers[i]
		}
	}
	b := make([]byte, n*eltsize)
	h.cBuffers = append(h.cBuffers, b)
	return b
}

// FreeBuffer releases one acquired buffer.
func (h *Heap) FreeBuffer(p []byte) {
	for i, b := range h.cBuffers {
		if len(b) > 0 && len(p) > 0 && &b[0] == &p[0] {
			h.cBuffers[i] = nil
			return
		}
	}
	fail(ErrNotFound, "attempt to free a buffer that was never acquired")
}

// ResetBuffers releases every acquired buffer; used on error recovery.
func (h *Heap) ResetBuffers() {
	for i := range h.cBuffers {
		h.cBuffers[i] = nil
	}
}
