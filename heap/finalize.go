package heap

import "encoding/binary"

// Finalization. Registrations live on a list of cells rooted in the
// collector: car is the object, tag the finalizer, and the low general
// purpose bit marks an entry whose object was found unreachable and which
// is therefore due to run.
//
// Host-side finalizers are stored as a character vector carrying an index
// into the heap's finalizer table, which keeps the registry itself made of
// ordinary traceable nodes.

// RegisterFinalizer attaches a callable finalizer to obj. Only environments
// and external pointers can be finalized, and fun must be a closure,
// builtin or special.
func (h *Heap) RegisterFinalizer(obj, fun *Node) {
	switch obj.kind {
	case TypeEnv, TypeExternalPtr:
	default:
		fail(ErrBadFinalizer, "can only finalize reference objects")
	}
	switch fun.kind {
	case TypeClosure, TypeBuiltin, TypeSpecial:
	default:
		fail(ErrBadFinalizer, "finalizer function must be a closure")
	}
	h.finRegistered = h.Cons(obj, h.finRegistered)
	h.SetTag(h.finRegistered, fun)
	h.finRegistered.gp = 0
}

// RegisterCFinalizer attaches a host-side finalizer to obj. The object is
// protected across the registration: without that, its only collector-
// visible link could be the registry itself, which would immediately flag
// it as ready to finalize.
func (h *Heap) RegisterCFinalizer(obj *Node, fun CFinalizer) {
	switch obj.kind {
	case TypeEnv, TypeExternalPtr:
	default:
		fail(ErrBadFinalizer, "can only finalize reference objects")
	}
	h.Protect(obj)
	h.finRegistered = h.Cons(obj, h.finRegistered)
	h.SetTag(h.finRegistered, h.makeCFinalizer(fun))
	h.finRegistered.gp = 0
	h.Unprotect(1)
}

func isCFinalizer(fun *Node) bool {
	return fun.kind == TypeChar
}

func (h *Heap) makeCFinalizer(fun CFinalizer) *Node {
	s := h.AllocString(8)
	binary.LittleEndian.PutUint64(s.bytes, uint64(len(h.cFinalizers)))
	h.cFinalizers = append(h.cFinalizers, fun)
	return s
}

func (h *Heap) getCFinalizer(fun *Node) CFinalizer {
	return h.cFinalizers[binary.LittleEndian.Uint64(fun.bytes)]
}

// checkFinalizers flags every registration whose object did not survive the
// mark. The caller then forwards the registry, so flagged objects stay
// alive until their finalizer has run.
func (h *Heap) checkFinalizers() {
	for s := h.finRegistered; s != h.Nil; s = s.cdr {
		if !s.car.mark && s.gp&1 == 0 {
			s.gp |= 1
		}
	}
}

// runFinalizers walks the registry and invokes every flagged entry,
// reporting whether any ran. Each entry is unlinked and unflagged before
// its finalizer is invoked, so a finalizer runs at most once even when it
// fails or when a collection it triggers walks the registry again.
func (h *Heap) runFinalizers() bool {
	ran := false
	s, last := h.finRegistered, h.Nil
	for s != h.Nil {
		next := s.cdr
		if s.gp&1 != 0 {
			ran = true
			if last == h.Nil {
				h.finRegistered = next
			} else {
				h.SetCdr(last, next)
			}
			s.gp &^= 1
			h.invokeFinalizer(s)
			h.finalizerRuns++
		} else {
			last = s
		}
		s = next
	}
	return ran
}

// invokeFinalizer runs one detached registry entry under a fresh top-level
// context: the protect stack top and current expression are restored on
// every exit path, and an error raised by the finalizer does not spill
// into the allocation that triggered the collection.
func (h *Heap) invokeFinalizer(entry *Node) {
	topExpr := h.currentExpr
	h.Protect(topExpr)
	savestack := h.ppStackTop

	defer func() {
		recover() // contain finalizer errors
		h.ppStackTop = savestack
		h.currentExpr = topExpr
		h.Unprotect(1)
	}()

	h.Protect(entry)
	val := entry.car
	fun := entry.tag
	if isCFinalizer(fun) {
		h.getCFinalizer(fun)(val)
	} else {
		call := h.Protect(h.langCall(fun, val))
		if h.evaluator == nil {
			fail(ErrBadFinalizer, "no evaluator installed for closure finalizers")
		}
		h.evaluator(call, h.GlobalEnv)
	}
}

// langCall builds the call (fun obj).
func (h *Heap) langCall(fun, obj *Node) *Node {
	h.Protect(fun)
	h.Protect(obj)
	args := h.Cons(obj, h.Nil)
	h.Protect(args)
	call := h.Cons(fun, args)
	call.kind = TypeLang
	h.Unprotect(3)
	return call
}
