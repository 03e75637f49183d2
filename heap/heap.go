// Package heap implements the interpreter's storage manager: a non-moving
// generational mark-sweep collector over slab-allocated nodes, with a write
// barrier tracking old-to-new references, a protect stack and precious list
// for root registration, and a finalizer registry.
//
// The heap is single-threaded and cooperative: the mutator and the
// collector share one goroutine, and a collection can only happen inside an
// allocation call or an explicit GC request. Allocation failures are
// delivered by panicking with *Error so the host's non-local exit can
// recover them.
package heap

import (
	"fmt"
	"io"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/mattn/go-colorable"
)

// RootSource yields external roots to the collector. The callback must be
// invoked once per live reference held outside the heap; nil references may
// be passed and are ignored.
type RootSource func(visit func(*Node))

// Evaluator evaluates a constructed call in the given environment. It is
// supplied by the interpreter and used to run closure finalizers; errors
// escape as panics and are contained by the collector's per-finalizer
// context.
type Evaluator func(call, env *Node)

// CFinalizer is a host-side finalizer invoked directly with the object.
type CFinalizer func(obj *Node)

// Heap is the storage manager. All state is owned by the mutator thread;
// none of the methods may be called concurrently.
type Heap struct {
	cfg Config

	classes [numNodeClasses]classHeap

	nodesInUse int
	collected  int

	nSize, vSize         int // current triggers, nodes and vector cells
	origNSize, origVSize int
	maxNSize, maxVSize   int

	smallVallocSize int
	largeVallocSize int

	gcCount             int
	genGCCounts         [numOldGenerations + 1]int
	collectCounts       [numOldGenerations]int
	numOldGensToCollect int
	releaseCount        int

	gcTorture bool
	gcInhibit int

	reporting    bool
	reportWriter io.Writer

	gcTime time.Duration

	// roots
	ppStack     []*Node
	ppStackTop  int
	precious    *Node
	vStack      *Node
	currentExpr *Node
	rootSources []RootSource

	// transient C-side buffers
	cBuffers [][]byte

	// finalization
	finRegistered *Node
	cFinalizers   []CFinalizer
	finalizerRuns int
	evaluator     Evaluator

	// Singletons. Nil is allocated first and self-references through all
	// three slots and the attribute; it is never reclaimed.
	Nil          *Node
	UnboundValue *Node
	MissingArg   *Node
	BlankString  *Node
	NAString     *Node
	GlobalEnv    *Node
}

// New initializes a heap: the per-class lists, the protect stack, the nil
// singleton and the other builtin constants.
func New(cfg Config) *Heap {
	h := &Heap{cfg: cfg.withDefaults()}

	h.reporting = h.cfg.Reporting
	h.gcTorture = h.cfg.Torture
	h.reportWriter = colorable.NewColorableStderr()

	h.ppStack = make([]*Node, h.cfg.ProtectStackSize)
	h.ppStackTop = 0

	// the vector trigger is configured in bytes but accounted in cells
	h.nSize = h.cfg.NSize
	h.vSize = (h.cfg.VSize + 1) / vecCellBytes
	h.origNSize = h.nSize
	h.origVSize = h.vSize
	h.maxNSize = h.cfg.MaxNSize
	if h.maxNSize == 0 {
		h.maxNSize = maxInt
	}
	h.maxVSize = h.cfg.MaxVSize
	if h.maxVSize == 0 {
		h.maxVSize = maxInt
	} else {
		h.maxVSize = (h.maxVSize + 1) / vecCellBytes
	}

	for i := range h.classes {
		c := &h.classes[i]
		for gen := 0; gen < numOldGenerations; gen++ {
			initPeg(c.old(gen))
			initPeg(c.oldToNew(gen))
		}
		initPeg(c.newSpace())
		c.free = c.newSpace().next
	}

	// The nil singleton must be the first node allocated. Its fields are
	// stored directly: the write barrier cannot run before nil exists.
	nilNode := h.getFreeNode(0)
	nilNode.kind = TypeNil
	nilNode.car = nilNode
	nilNode.cdr = nilNode
	nilNode.tag = nilNode
	nilNode.attrib = nilNode
	h.Nil = nilNode

	h.finRegistered = h.Nil
	h.precious = h.Nil
	h.vStack = h.Nil

	h.UnboundValue = h.newSymbol("")
	h.MissingArg = h.newSymbol("")
	h.BlankString = h.NewCharString("")
	h.NAString = h.NewCharString("NA")
	h.GlobalEnv = h.NewEnvironment(h.Nil, h.Nil, h.Nil)
	return h
}

// newSymbol builds a bootstrap symbol without consulting the symbol table.
func (h *Heap) newSymbol(name string) *Node {
	h.gcInhibit++
	defer func() { h.gcInhibit-- }()
	pn := h.Protect(h.NewCharString(name))
	s := h.AllocNode(TypeSymbol)
	s.car = pn // printname; fresh node, barrier not needed
	s.cdr = s  // value slot: unbound symbols self-reference at bootstrap
	h.Unprotect(1)
	return s
}

// withGCInhibited suppresses torture-forced collections around fn.
func (h *Heap) withGCInhibited(fn func()) {
	h.gcInhibit++
	defer func() { h.gcInhibit-- }()
	fn()
}

// forceGC reports whether torture mode wants a collection now.
func (h *Heap) forceGC() bool {
	return h.gcTorture && h.gcInhibit == 0
}

// noFreeNodes reports whether the node trigger has been reached.
func (h *Heap) noFreeNodes() bool {
	return h.nodesInUse >= h.nSize
}

// vheapFree returns the unallocated portion of the vector trigger, in cells.
func (h *Heap) vheapFree() int {
	return h.vSize - h.largeVallocSize - h.smallVallocSize
}

// RegisterRootSource adds an external root enumerator. The symbol table,
// the context chain and similar interpreter structures register themselves
// here.
func (h *Heap) RegisterRootSource(src RootSource) {
	h.rootSources = append(h.rootSources, src)
}

// SetEvaluator installs the interpreter callback used to run closure
// finalizers.
func (h *Heap) SetEvaluator(eval Evaluator) {
	h.evaluator = eval
}

// SetCurrentExpr publishes the expression under evaluation as a root.
func (h *Heap) SetCurrentExpr(e *Node) { h.currentExpr = e }

// CurrentExpr returns the currently published expression.
func (h *Heap) CurrentExpr() *Node { return h.currentExpr }

// GCTorture toggles a forced collection before every allocation and
// returns the previous setting.
func (h *Heap) GCTorture(on bool) bool {
	old := h.gcTorture
	h.gcTorture = on
	return old
}

// GCInfo toggles per-collection reporting and returns the previous setting.
func (h *Heap) GCInfo(on bool) bool {
	old := h.reporting
	h.reporting = on
	return old
}

// SetReportWriter redirects collection reports.
func (h *Heap) SetReportWriter(w io.Writer) { h.reportWriter = w }

// SetMaxNSize sets the node trigger ceiling. Values below the current
// trigger are ignored.
func (h *Heap) SetMaxNSize(size int) {
	if size >= h.nSize {
		h.maxNSize = size
	}
}

// SetMaxVSize sets the vector ceiling, in bytes. Values below the current
// trigger are ignored.
func (h *Heap) SetMaxVSize(size int) {
	if size/vecCellBytes >= h.vSize {
		h.maxVSize = (size + 1) / vecCellBytes
	}
}

// MemLimits applies both ceilings at once (a zero leaves a ceiling
// untouched) and returns the effective values, nodes and cells.
func (h *Heap) MemLimits(nsize, vsize int) (int, int) {
	if nsize != 0 {
		h.SetMaxNSize(nsize)
	}
	if vsize != 0 {
		h.SetMaxVSize(vsize)
	}
	return h.maxNSize, h.maxVSize
}

// MaxNSize returns the node ceiling.
func (h *Heap) MaxNSize() int { return h.maxNSize }

// MaxVSize returns the vector ceiling in cells.
func (h *Heap) MaxVSize() int { return h.maxVSize }

// GCTime returns the accumulated wall-clock time spent in collections.
func (h *Heap) GCTime() time.Duration { return h.gcTime }

// Stats is a point-in-time snapshot of the heap counters.
type Stats struct {
	NodesInUse      int
	NSize           int
	VSize           int // cells
	SmallVallocSize int // cells
	LargeVallocSize int // cells
	VHeapFree       int // cells
	Collections     int
	CollectionsByLevel [numOldGenerations + 1]int
	FinalizerRuns   int
	PageCounts      [numSmallNodeClasses]int
	AllocCounts     [numNodeClasses]int
}

// ReadStats fills st with the current counters.
func (h *Heap) ReadStats(st *Stats) {
	st.NodesInUse = h.nodesInUse
	st.NSize = h.nSize
	st.VSize = h.vSize
	st.SmallVallocSize = h.smallVallocSize
	st.LargeVallocSize = h.largeVallocSize
	st.VHeapFree = h.vheapFree()
	st.Collections = h.gcCount
	st.CollectionsByLevel = h.genGCCounts
	st.FinalizerRuns = h.finalizerRuns
	for i := 0; i < numSmallNodeClasses; i++ {
		st.PageCounts[i] = h.classes[i].pageCount
	}
	for i := 0; i < numNodeClasses; i++ {
		st.AllocCounts[i] = h.classes[i].allocCount
	}
}

// MemoryProfile runs a full collection and returns live node counts indexed
// by type tag.
func (h *Heap) MemoryProfile() [numTypes]int {
	var counts [numTypes]int
	h.GC()
	for gen := 0; gen < numOldGenerations; gen++ {
		for i := 0; i < numNodeClasses; i++ {
			peg := h.classes[i].old(gen)
			for s := peg.next; s != peg; s = s.next {
				counts[s.kind]++
			}
		}
	}
	return counts
}

// WriteMemorySummary prints a human-oriented overview of the heap: trigger
// levels, occupancy, and the total slab and large-vector allocation.
func (h *Heap) WriteMemorySummary(w io.Writer) {
	alloc := h.largeVallocSize*vecCellBytes +
		align8(nodeHeaderBytes)*h.classes[largeNodeClass].allocCount
	for i := 0; i < numSmallNodeClasses; i++ {
		alloc += basePageSize * h.classes[i].pageCount
	}
	fmt.Fprintf(w, "Node occupancy: %d of %d (%.0f%%)\n",
		h.nodesInUse, h.nSize, 100.0*float64(h.nodesInUse)/float64(h.nSize))
	fmt.Fprintf(w, "Vector occupancy: %d of %d cells (%.0f%%)\n",
		h.smallVallocSize+h.largeVallocSize, h.vSize,
		100.0*float64(h.smallVallocSize+h.largeVallocSize)/float64(h.vSize))
	fmt.Fprintf(w, "Total allocation: %s\n", bytesize.New(float64(alloc)))
	fmt.Fprintf(w, "Ncells %d\nVcells %d\n", h.nSize, h.vSize)
}

const maxInt = int(^uint(0) >> 1)
