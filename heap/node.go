package heap

// Type is the tag selecting a node variant. The numbering matches the
// interpreter's historical table, including its gaps, so per-type profile
// vectors can be indexed directly by tag.
type Type uint8

const (
	TypeNil         Type = 0  // the nil singleton
	TypeSymbol      Type = 1  // symbol: printname, value, internal
	TypeList        Type = 2  // list cell: tag, car, cdr
	TypeClosure     Type = 3  // closure: formals, body, environment
	TypeEnv         Type = 4  // environment: frame, enclos, hashtab
	TypePromise     Type = 5  // promise: value, expr, env
	TypeLang        Type = 6  // language object (list cell variant)
	TypeSpecial     Type = 7  // special form
	TypeBuiltin     Type = 8  // builtin function
	TypeChar        Type = 9  // character string (byte vector)
	TypeLogical     Type = 10 // logical vector
	TypeInt         Type = 13 // integer vector
	TypeReal        Type = 14 // real vector
	TypeComplex     Type = 15 // complex vector
	TypeString      Type = 16 // string vector (references to char nodes)
	TypeDots        Type = 17 // dotted argument list
	TypeAny         Type = 18 // any, used in type matching only
	TypeVector      Type = 19 // generic vector (references)
	TypeExpression  Type = 20 // expression vector (references)
	TypeExternalPtr Type = 22 // external pointer: raw, prot, tag

	// numTypes bounds tag-indexed tables such as the memory profile.
	numTypes = 23
)

var typeNames = map[Type]string{
	TypeNil:         "nil",
	TypeSymbol:      "symbol",
	TypeList:        "pairlist",
	TypeClosure:     "closure",
	TypeEnv:         "environment",
	TypePromise:     "promise",
	TypeLang:        "language",
	TypeSpecial:     "special",
	TypeBuiltin:     "builtin",
	TypeChar:        "char",
	TypeLogical:     "logical",
	TypeInt:         "integer",
	TypeReal:        "double",
	TypeComplex:     "complex",
	TypeString:      "character",
	TypeDots:        "...",
	TypeAny:         "any",
	TypeVector:      "list",
	TypeExpression:  "expression",
	TypeExternalPtr: "externalptr",
}

// String returns a human-readable name for the type tag.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "!err"
}

// Node is a heap object. Every variant shares the same header; the three
// reference slots tag/car/cdr are reused by symbols, closures, promises and
// environments, so the collector can treat all of them alike. Vector variants
// carry their elements in exactly one of the payload slices.
//
// The next/prev links are owned by the collector: every node is threaded on
// exactly one circular generation list at all times, except while it sits on
// the mark worklist (chained through next only).
type Node struct {
	kind  Type
	mark  bool
	gen   uint8 // old generation, meaningful only while marked
	class uint8 // node size class; 0 for non-vector nodes

	// mutator-visible flags
	gp      uint8 // general purpose bits; bit 0 doubles as the finalizer and promise-seen flag
	named   uint8
	obj     bool
	debug   bool
	trace   bool
	missing bool

	attrib     *Node
	next, prev *Node

	// reference slots shared by the three-slot variants
	tag, car, cdr *Node

	length, truelength int

	// vector payloads; at most one is non-nil
	bytes []byte
	ints  []int32
	reals []float64
	cplx  []complex128
	ptrs  []*Node

	raw any // external pointer address
}

// Type returns the node's tag.
func (n *Node) Type() Type { return n.kind }

// Length returns the element count of a vector node.
func (n *Node) Length() int { return n.length }

// TrueLength returns the reserve length of a vector node.
func (n *Node) TrueLength() int { return n.truelength }

// Generation reports the old generation the node was last marked into.
// Freshly allocated nodes report 0.
func (n *Node) Generation() int { return int(n.gen) }

// NodeClass reports the node's size class.
func (n *Node) NodeClass() int { return int(n.class) }

// Marked reports whether the node survived the most recent collection that
// examined it.
func (n *Node) Marked() bool { return n.mark }

// Attrib returns the attribute list.
func (n *Node) Attrib() *Node { return n.attrib }

// Tag, Car and Cdr read the three reference slots of a list cell. Reads do
// not involve the write barrier.
func (n *Node) Tag() *Node { return n.tag }
func (n *Node) Car() *Node { return n.car }
func (n *Node) Cdr() *Node { return n.cdr }

// Closure accessors.
func (n *Node) Formals() *Node { return n.car }
func (n *Node) Body() *Node    { return n.cdr }
func (n *Node) CloEnv() *Node  { return n.tag }

// Symbol accessors.
func (n *Node) PrintName() *Node { return n.car }
func (n *Node) SymValue() *Node  { return n.cdr }
func (n *Node) Internal() *Node  { return n.tag }

// Promise accessors.
func (n *Node) PromValue() *Node { return n.car }
func (n *Node) PromExpr() *Node  { return n.cdr }
func (n *Node) PromEnv() *Node   { return n.tag }
func (n *Node) PromSeen() bool   { return n.gp&1 != 0 }

// Environment accessors.
func (n *Node) Frame() *Node   { return n.car }
func (n *Node) Enclos() *Node  { return n.cdr }
func (n *Node) HashTab() *Node { return n.tag }

// External pointer accessors.
func (n *Node) ExternalPtrAddr() any        { return n.raw }
func (n *Node) ExternalPtrProtected() *Node { return n.cdr }
func (n *Node) ExternalPtrTag() *Node       { return n.tag }

// Flag accessors. These mirror the accessor surface of the interpreter; the
// setters that take no reference argument do not involve the write barrier.
func (n *Node) Object() bool       { return n.obj }
func (n *Node) SetObject(v bool)   { n.obj = v }
func (n *Node) Named() int         { return int(n.named) }
func (n *Node) SetNamed(v int)     { n.named = uint8(v) }
func (n *Node) Debug() bool        { return n.debug }
func (n *Node) SetDebug(v bool)    { n.debug = v }
func (n *Node) Trace() bool        { return n.trace }
func (n *Node) SetTrace(v bool)    { n.trace = v }
func (n *Node) Missing() bool      { return n.missing }
func (n *Node) SetMissing(v bool)  { n.missing = v }
func (n *Node) Levels() int        { return int(n.gp) }
func (n *Node) SetLevels(v int)    { n.gp = uint8(v) }
func (n *Node) SetPromSeen(v bool) { n.setGPBit(v) }

// Hash accessors. The hash flag lives in a general purpose bit and the hash
// value reuses the reserve length slot.
func (n *Node) HasHash() bool       { return n.gp&2 != 0 }
func (n *Node) HashValue() int      { return n.truelength }
func (n *Node) SetHashValue(v int)  { n.truelength = v }
func (n *Node) SetHasHash(v bool) {
	if v {
		n.gp |= 2
	} else {
		n.gp &^= 2
	}
}

func (n *Node) setGPBit(v bool) {
	if v {
		n.gp |= 1
	} else {
		n.gp &^= 1
	}
}

// SetLength adjusts the visible length of a vector node. Shortening only;
// the payload is never reallocated.
func (n *Node) SetLength(v int)     { n.length = v }
func (n *Node) SetTrueLength(v int) { n.truelength = v }

// Numeric payload access. Element stores through these slices carry no
// references and therefore need no barrier.
func (n *Node) Logicals() []int32      { return n.ints }
func (n *Node) Ints() []int32          { return n.ints }
func (n *Node) Reals() []float64       { return n.reals }
func (n *Node) Complexes() []complex128 { return n.cplx }

// Bytes returns the raw character payload including the terminating NUL.
func (n *Node) Bytes() []byte { return n.bytes }

// String returns the character data of a char node up to the trailing NUL.
func (n *Node) String() string {
	if n.kind != TypeChar {
		return ""
	}
	return string(n.bytes[:n.length])
}

// StringElt returns element i of a string vector.
func (n *Node) StringElt(i int) *Node { return n.ptrs[i] }

// VectorElt returns element i of a generic or expression vector.
func (n *Node) VectorElt(i int) *Node { return n.ptrs[i] }

// forEachChild enumerates the outgoing references of n in a fixed order:
// the attribute list first, then the variant's own slots. An unknown tag is
// a torn object and aborts.
func (h *Heap) forEachChild(n *Node, fn func(*Node)) {
	if n.attrib != h.Nil {
		fn(n.attrib)
	}
	switch n.kind {
	case TypeNil, TypeBuiltin, TypeSpecial, TypeChar,
		TypeLogical, TypeInt, TypeReal, TypeComplex:
		// leaf variants carry only the attribute reference
	case TypeString, TypeExpression, TypeVector:
		for i := 0; i < n.length; i++ {
			fn(n.ptrs[i])
		}
	case TypeEnv:
		fn(n.car) // frame
		fn(n.cdr) // enclos
		fn(n.tag) // hashtab
	case TypeClosure, TypePromise, TypeList, TypeLang, TypeDots, TypeSymbol:
		fn(n.tag)
		fn(n.car)
		fn(n.cdr)
	case TypeExternalPtr:
		fn(n.cdr) // protected value
		fn(n.tag)
	default:
		heapPanic("heap: unknown node type during child traversal")
	}
}
