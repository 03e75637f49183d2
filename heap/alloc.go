package heap

// Vector size rules: lengths are converted to 8-byte vector cells before a
// node class is chosen.

func byteToCells(n int) int    { return (n + vecCellBytes - 1) / vecCellBytes }
func intToCells(n int) int     { return (n*4 + vecCellBytes - 1) / vecCellBytes }
func floatToCells(n int) int   { return n }
func complexToCells(n int) int { return n * 2 }
func ptrToCells(n int) int     { return n }

// getFreeNode takes the next free slot of a class, growing the class by a
// page when the free cursor has reached the new-space peg. The slot stays
// on the new-space list; the cursor separates allocated from free slots.
func (h *Heap) getFreeNode(class int) *Node {
	c := &h.classes[class]
	n := c.free
	if n == c.newSpace() {
		h.getNewPage(class)
		n = c.free
	}
	c.free = n.next
	h.nodesInUse++
	return n
}

// clearNode resets a recycled slot to the unmarked template and stamps the
// type. The class bits are preserved; payload references are dropped so a
// stale slot cannot keep dead objects alive.
func (h *Heap) clearNode(s *Node, t Type) {
	s.kind = t
	s.mark = false
	s.gen = 0
	s.gp = 0
	s.named = 0
	s.obj = false
	s.debug = false
	s.trace = false
	s.missing = false
	s.length = 0
	s.truelength = 0
	s.bytes = nil
	s.ints = nil
	s.reals = nil
	s.cplx = nil
	s.ptrs = nil
	s.raw = nil
}

// AllocNode allocates a non-vector node of the given type with all
// reference slots set to nil. A collection runs first if the node trigger
// has been reached.
func (h *Heap) AllocNode(t Type) *Node {
	if h.forceGC() || h.noFreeNodes() {
		h.gcInternal(0)
		if h.noFreeNodes() {
			fail(ErrConsExhausted, "cons memory exhausted (limit reached?)")
		}
	}
	s := h.getFreeNode(0)
	h.clearNode(s, t)
	s.car = h.Nil
	s.cdr = h.Nil
	s.tag = h.Nil
	s.attrib = h.Nil
	return s
}

// allocNodeNonCons is AllocNode for variants whose car and cdr slots are
// never traversed; only the tag and attribute references are initialized.
func (h *Heap) allocNodeNonCons(t Type) *Node {
	if h.forceGC() || h.noFreeNodes() {
		h.gcInternal(0)
		if h.noFreeNodes() {
			fail(ErrConsExhausted, "cons memory exhausted (limit reached?)")
		}
	}
	s := h.getFreeNode(0)
	h.clearNode(s, t)
	s.tag = h.Nil
	s.attrib = h.Nil
	return s
}

// Cons allocates a list cell. The arguments are protected only if a
// collection actually has to run.
func (h *Heap) Cons(car, cdr *Node) *Node {
	if h.forceGC() || h.noFreeNodes() {
		h.Protect(car)
		h.Protect(cdr)
		h.gcInternal(0)
		h.Unprotect(2)
		if h.noFreeNodes() {
			fail(ErrConsExhausted, "cons memory exhausted (limit reached?)")
		}
	}
	s := h.getFreeNode(0)
	h.clearNode(s, TypeList)
	s.car = car
	s.cdr = cdr
	s.tag = h.Nil
	s.attrib = h.Nil
	return s
}

// NewEnvironment extends enclos with a frame pairing the names on namelist
// with the values on valuelist. The namelist may be shorter than the
// valuelist when the tail of the valuelist is already tagged.
func (h *Heap) NewEnvironment(namelist, valuelist, enclos *Node) *Node {
	if h.forceGC() || h.noFreeNodes() {
		h.Protect(namelist)
		h.Protect(valuelist)
		h.Protect(enclos)
		h.gcInternal(0)
		h.Unprotect(3)
		if h.noFreeNodes() {
			fail(ErrConsExhausted, "cons memory exhausted (limit reached?)")
		}
	}
	newrho := h.getFreeNode(0)
	h.clearNode(newrho, TypeEnv)
	newrho.car = valuelist // frame
	newrho.cdr = enclos
	newrho.tag = h.Nil // hashtab
	newrho.attrib = h.Nil
	if newrho.car == nil {
		newrho.car = h.Nil
	}
	if newrho.cdr == nil {
		newrho.cdr = h.Nil
	}

	v, n := valuelist, namelist
	for v != h.Nil && n != h.Nil && v != nil && n != nil {
		h.SetTag(v, n.tag)
		v = v.cdr
		n = n.cdr
	}
	return newrho
}

// NewPromise allocates a promise for expr to be evaluated in env. The value
// slot starts out as the unbound sentinel and the seen flag cleared.
func (h *Heap) NewPromise(expr, env *Node) *Node {
	if h.forceGC() || h.noFreeNodes() {
		h.Protect(expr)
		h.Protect(env)
		h.gcInternal(0)
		h.Unprotect(2)
		if h.noFreeNodes() {
			fail(ErrConsExhausted, "cons memory exhausted (limit reached?)")
		}
	}
	s := h.getFreeNode(0)
	h.clearNode(s, TypePromise)
	s.car = h.UnboundValue // value
	s.cdr = expr
	s.tag = env
	s.attrib = h.Nil
	return s
}

// NewExternalPtr wraps a host value with protected and tag references.
func (h *Heap) NewExternalPtr(raw any, tag, prot *Node) *Node {
	s := h.AllocNode(TypeExternalPtr)
	s.raw = raw
	s.cdr = prot
	s.tag = tag
	return s
}

// ClearExternalPtr drops the wrapped host value.
func (h *Heap) ClearExternalPtr(s *Node) { s.raw = nil }

// SetExternalPtrAddr replaces the wrapped host value.
func (h *Heap) SetExternalPtrAddr(s *Node, raw any) { s.raw = raw }

// AllocVector allocates a vector of the given type and length. Reference
// vectors come back with every element set to a safe canonical value so a
// collection cannot observe garbage; character vectors are NUL-terminated.
// Numeric payloads are not part of the initialization contract.
func (h *Heap) AllocVector(t Type, length int) *Node {
	if length < 0 {
		fail(ErrNegativeLength, "negative length vectors are not allowed")
	}

	size := 0
	switch t {
	case TypeNil:
		return h.Nil
	case TypeChar:
		size = byteToCells(length + 1)
	case TypeLogical, TypeInt:
		if length > 0 {
			size = intToCells(length)
		}
	case TypeReal:
		if length > 0 {
			size = floatToCells(length)
		}
	case TypeComplex:
		if length > 0 {
			size = complexToCells(length)
		}
	case TypeString, TypeExpression, TypeVector:
		if length > 0 {
			size = ptrToCells(length)
		}
	case TypeLang:
		if length == 0 {
			return h.Nil
		}
		s := h.AllocList(length)
		s.kind = TypeLang
		return s
	case TypeList:
		return h.AllocList(length)
	default:
		fail(ErrInvalidType, "invalid type/length (%d/%d) in vector allocation", t, length)
	}

	nodeClass := largeNodeClass
	allocSize := size
	if size <= nodeClassSize[1] {
		nodeClass = 1
		allocSize = nodeClassSize[1]
	} else {
		for i := 2; i < numSmallNodeClasses; i++ {
			if size <= nodeClassSize[i] {
				nodeClass = i
				allocSize = nodeClassSize[i]
				break
			}
		}
	}

	// remember the trigger so a failed large allocation can roll back any
	// adjustment made by the collection
	oldVSize := h.vSize

	if h.forceGC() || h.noFreeNodes() || allocSize > h.vheapFree() {
		h.gcInternal(allocSize)
		if h.noFreeNodes() {
			fail(ErrConsExhausted, "cons memory exhausted (limit reached?)")
		}
		if h.vheapFree() < allocSize {
			fail(ErrVectorExhausted, "vector memory exhausted (limit reached?)")
		}
	}

	var s *Node
	if size > 0 {
		if nodeClass < numSmallNodeClasses {
			s = h.getFreeNode(nodeClass)
			h.clearNode(s, t)
			s.class = uint8(nodeClass)
			h.smallVallocSize += allocSize
		} else {
			if size >= maxInt/vecCellBytes-align8(nodeHeaderBytes) {
				h.vSize = oldVSize
				fail(ErrVectorTooLarge, "cannot allocate vector of size %d Kb",
					int64(size)*vecCellBytes/1024)
			}
			s = &Node{}
			h.clearNode(s, t)
			s.class = largeNodeClass
			h.largeVallocSize += allocSize
			h.classes[largeNodeClass].allocCount++
			snap(s, h.classes[largeNodeClass].newSpace())
		}
		s.attrib = h.Nil
		h.newPayload(s, t, length)
	} else {
		h.withGCInhibited(func() {
			s = h.allocNodeNonCons(t)
		})
	}
	s.length = length
	s.truelength = length
	s.named = 0

	// an uninitialised reference vector must never be observed by a mark:
	// direct stores are fine here, the node is at least as new as nil and
	// the blank string
	switch t {
	case TypeExpression, TypeVector:
		for i := range s.ptrs {
			s.ptrs[i] = h.Nil
		}
	case TypeString:
		for i := range s.ptrs {
			s.ptrs[i] = h.BlankString
		}
	}
	return s
}

// newPayload attaches the typed element buffer for a vector node.
func (h *Heap) newPayload(s *Node, t Type, length int) {
	switch t {
	case TypeChar:
		s.bytes = make([]byte, length+1) // trailing NUL
	case TypeLogical, TypeInt:
		s.ints = make([]int32, length)
	case TypeReal:
		s.reals = make([]float64, length)
	case TypeComplex:
		s.cplx = make([]complex128, length)
	case TypeString, TypeExpression, TypeVector:
		s.ptrs = make([]*Node, length)
	}
}

// largeVectorCells returns the accounted cell count of a large vector node,
// derived from its type and length the same way allocation sized it.
func largeVectorCells(s *Node) int {
	switch s.kind {
	case TypeChar:
		return byteToCells(s.length + 1)
	case TypeLogical, TypeInt:
		return intToCells(s.length)
	case TypeReal:
		return floatToCells(s.length)
	case TypeComplex:
		return complexToCells(s.length)
	case TypeString, TypeExpression, TypeVector:
		return ptrToCells(s.length)
	default:
		heapPanic("heap: non-vector node in large vector space")
		return 0
	}
}

// AllocList builds a chain of n list cells, each car and tag nil.
func (h *Heap) AllocList(n int) *Node {
	result := h.Nil
	for i := 0; i < n; i++ {
		result = h.Cons(h.Nil, result)
	}
	return result
}

// AllocLang builds a language object of length n.
func (h *Heap) AllocLang(n int) *Node {
	s := h.AllocList(n)
	if s != h.Nil {
		s.kind = TypeLang
	}
	return s
}

// AllocString allocates a character vector holding length bytes plus the
// terminating NUL.
func (h *Heap) AllocString(length int) *Node {
	return h.AllocVector(TypeChar, length)
}

// NewCharString allocates a character vector holding a copy of s.
func (h *Heap) NewCharString(s string) *Node {
	n := h.AllocString(len(s))
	copy(n.bytes, s)
	return n
}

// SetStringContents overwrites the byte payload of a char node, keeping the
// trailing NUL. The new contents must fit the allocated length.
func (h *Heap) SetStringContents(n *Node, s string) {
	if n.kind != TypeChar || len(s) > n.length {
		fail(ErrBadValue, "bad value")
	}
	copy(n.bytes, s)
	for i := len(s); i <= n.length; i++ {
		n.bytes[i] = 0
	}
}
