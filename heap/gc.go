package heap

// The generational collector. Collection levels: level 0 collects only the
// new space, level 1 the new space and generation 0, level 2 everything.
// The level is chosen by per-generation countdowns, and a collection that
// frees too little escalates and reruns at the next level.

import (
	"fmt"
	"time"
)

const gcAsserts = false

const mega = 1048576.0

// GC forces a full collection, then runs eligible finalizers.
func (h *Heap) GC() {
	h.numOldGensToCollect = numOldGenerations
	h.gcInternal(0)
}

// Collect runs a collection at whatever level is currently due.
func (h *Heap) Collect() {
	h.gcInternal(0)
}

// gcInternal is the entry point used by the allocator: collect, report,
// then run finalizers once. A finalizer may allocate enough to put the heap
// back over budget; in that case one more collection runs, without
// finalizers, so no finalizer can run twice in one collection.
func (h *Heap) gcInternal(sizeNeeded int) {
	first := true

again:
	h.gcCount++

	start := time.Now()
	h.runCollect(sizeNeeded)
	h.gcTime += time.Since(start)

	if h.reporting {
		fmt.Fprintf(h.reportWriter, "\n%d cons cells free (%d%%)\n",
			h.collected, 100*h.collected/h.nSize)
		vcells := h.vheapFree()
		vfrac := (100.0 * float64(vcells)) / float64(h.vSize)
		// the percentage is rounded down, or a nearly full heap would
		// report `100% free'
		fmt.Fprintf(h.reportWriter, "%.1f Mbytes of heap free (%d%%)\n",
			float64(vcells)*vecCellBytes/mega, int(vfrac))
	}

	if first {
		first = false
		if h.runFinalizers() && (h.noFreeNodes() || sizeNeeded > h.vheapFree()) {
			goto again
		}
	}
}

// processNodes drains the worklist: each node is spliced into the old list
// matching its class and generation, counted, and has its children
// forwarded in turn.
func (h *Heap) processNodes(worklist **Node) {
	for *worklist != nil {
		s := *worklist
		*worklist = s.next
		c := &h.classes[s.class]
		snap(s, c.old(int(s.gen)))
		c.oldCount[s.gen]++
		h.forwardChildren(s, worklist)
	}
}

// forwardChildren forwards every outgoing reference of n.
func (h *Heap) forwardChildren(n *Node, worklist **Node) {
	h.forEachChild(n, func(child *Node) {
		forward(child, worklist)
	})
}

// ageNode promotes s to generation gen if it is younger, moving it onto the
// local worklist. A marked node leaves its old generation's count behind.
func (h *Heap) ageNode(s *Node, gen int, worklist **Node) {
	if s != nil && isYoungerThanGen(s, gen) {
		if s.mark {
			h.classes[s.class].oldCount[s.gen]--
		} else {
			s.mark = true
		}
		s.gen = uint8(gen)
		unsnap(s)
		s.next = *worklist
		*worklist = s
	}
}

// ageNodeAndChildren transfers s and everything reachable from it up to
// generation gen. Used to absorb old-to-new references before a collection
// of gen.
func (h *Heap) ageNodeAndChildren(s *Node, gen int) {
	var forwarded *Node
	h.ageNode(s, gen, &forwarded)
	for forwarded != nil {
		n := forwarded
		forwarded = n.next
		c := &h.classes[n.class]
		snap(n, c.old(gen))
		c.oldCount[gen]++
		h.forEachChild(n, func(child *Node) {
			h.ageNode(child, gen, &forwarded)
		})
	}
}

// runCollect is one full collection cycle at the level chosen by the
// countdowns, with escalation when too little was freed.
func (h *Heap) runCollect(sizeNeeded int) {
	// determine the number of old generations to collect
	for h.numOldGensToCollect < numOldGenerations {
		g := h.numOldGensToCollect
		c := h.collectCounts[g]
		h.collectCounts[g] = c - 1
		if c <= 0 {
			h.collectCounts[g] = collectCountsMax[g]
			h.numOldGensToCollect++
		} else {
			break
		}
	}

	var gensCollected int

again:
	gensCollected = h.numOldGensToCollect

	// eliminate old-to-new references in generations to collect by
	// transferring the referenced nodes to the referring generation
	for gen := 0; gen < h.numOldGensToCollect; gen++ {
		for i := range h.classes {
			peg := h.classes[i].oldToNew(gen)
			s := peg.next
			for s != peg {
				next := s.next
				h.forEachChild(s, func(child *Node) {
					h.ageNodeAndChildren(child, gen)
				})
				unsnap(s)
				snap(s, h.classes[i].old(gen))
				s = next
			}
		}
	}

	// unmark all nodes in old generations to be collected, pre-promote the
	// survivors-to-be and move everything to new space
	for gen := 0; gen < h.numOldGensToCollect; gen++ {
		for i := range h.classes {
			c := &h.classes[i]
			c.oldCount[gen] = 0
			peg := c.old(gen)
			for s := peg.next; s != peg; s = s.next {
				if gen < numOldGenerations-1 {
					s.gen = uint8(gen + 1)
				}
				s.mark = false
			}
			bulkMove(peg, c.newSpace())
		}
	}

	var forwarded *Node

	// scan nodes in uncollected old generations with old-to-new references;
	// the entries themselves stay where they are
	for gen := h.numOldGensToCollect; gen < numOldGenerations; gen++ {
		for i := range h.classes {
			peg := h.classes[i].oldToNew(gen)
			for s := peg.next; s != peg; s = s.next {
				h.forwardChildren(s, &forwarded)
			}
		}
	}

	// forward all roots
	forward(h.Nil, &forwarded) // builtin constants
	forward(h.NAString, &forwarded)
	forward(h.BlankString, &forwarded)
	forward(h.UnboundValue, &forwarded)
	forward(h.MissingArg, &forwarded)

	forward(h.GlobalEnv, &forwarded)

	for _, src := range h.rootSources { // interpreter-registered roots
		src(func(n *Node) {
			forward(n, &forwarded)
		})
	}

	if h.currentExpr != nil { // current expression
		forward(h.currentExpr, &forwarded)
	}

	forward(h.precious, &forwarded)

	for i := 0; i < h.ppStackTop; i++ { // protected references
		forward(h.ppStack[i], &forwarded)
	}

	forward(h.vStack, &forwarded) // transient allocation stack

	// main processing loop
	h.processNodes(&forwarded)

	// mark nodes ready for finalizing, then keep everything the registry
	// can reach alive for one more collection
	h.checkFinalizers()
	forward(h.finRegistered, &forwarded)
	h.processNodes(&forwarded)

	h.releaseLargeFreeVectors()

	// reset the free cursors
	for i := range h.classes {
		c := &h.classes[i]
		c.free = c.newSpace().next
	}

	// update heap statistics
	h.collected = h.nSize
	h.smallVallocSize = 0
	for gen := 0; gen < numOldGenerations; gen++ {
		for i := 1; i < numSmallNodeClasses; i++ {
			h.smallVallocSize += h.classes[i].oldCount[gen] * nodeClassSize[i]
		}
		for i := 0; i < numNodeClasses; i++ {
			h.collected -= h.classes[i].oldCount[gen]
		}
	}
	h.nodesInUse = h.nSize - h.collected

	if gcAsserts {
		h.checkNodeCounts()
	}

	if h.numOldGensToCollect < numOldGenerations {
		if h.collected < int(h.cfg.MinFreeFrac*float64(h.nSize)) ||
			h.vheapFree()-sizeNeeded < int(h.cfg.MinFreeFrac*float64(h.vSize)) {
			h.numOldGensToCollect++
			if h.collected <= 0 || h.vheapFree() < sizeNeeded {
				goto again
			}
		} else {
			h.numOldGensToCollect = 0
		}
	} else {
		h.numOldGensToCollect = 0
	}

	h.genGCCounts[gensCollected]++

	if gensCollected == numOldGenerations {
		h.adjustHeapSize(sizeNeeded)
		h.tryToReleasePages()
	} else if gensCollected > 0 {
		h.tryToReleasePages()
	}

	if gensCollected == numOldGenerations {
		h.sortNodes()
	}

	if h.reporting {
		fmt.Fprintf(h.reportWriter, "Garbage collection %d = %d", h.gcCount, h.genGCCounts[0])
		for i := 0; i < numOldGenerations; i++ {
			fmt.Fprintf(h.reportWriter, "+%d", h.genGCCounts[i+1])
		}
		fmt.Fprintf(h.reportWriter, " (level %d) ... ", gensCollected)
	}
}

// releaseLargeFreeVectors frees the payload of every large vector left in
// new space after the mark; survivors were moved to their old lists.
func (h *Heap) releaseLargeFreeVectors() {
	c := &h.classes[largeNodeClass]
	peg := c.newSpace()
	s := peg.next
	for s != peg {
		next := s.next
		size := largeVectorCells(s)
		unsnap(s)
		h.largeVallocSize -= size
		c.allocCount--
		s.bytes = nil
		s.ints = nil
		s.reals = nil
		s.cplx = nil
		s.ptrs = nil
		s = next
	}
}

// sortNodes rebuilds each small class's new space in page-traversal order
// to restore locality of the free lists without moving any object. Run
// after full collections only.
func (h *Heap) sortNodes() {
	for i := 0; i < numSmallNodeClasses; i++ {
		c := &h.classes[i]
		initPeg(c.newSpace())
		for page := c.pages; page != nil; page = page.next {
			for j := range page.slots {
				s := &page.slots[j]
				if !s.mark {
					snap(s, c.newSpace())
				}
			}
		}
		c.free = c.newSpace().next
	}
}

// adjustHeapSize moves the collection triggers towards a target occupancy
// band, never below the configured minima or the current need, and never
// above the configured maxima.
func (h *Heap) adjustHeapSize(sizeNeeded int) {
	minNFree := int(float64(h.origNSize) * h.cfg.MinFreeFrac)
	minVFree := int(float64(h.origVSize) * h.cfg.MinFreeFrac)
	nNeeded := h.nodesInUse + minNFree
	vNeeded := h.smallVallocSize + h.largeVallocSize + sizeNeeded + minVFree
	nodeOccup := float64(nNeeded) / float64(h.nSize)
	vectOccup := float64(vNeeded) / float64(h.vSize)

	if nodeOccup > h.cfg.NGrowFrac {
		change := h.cfg.NGrowIncrMin + int(h.cfg.NGrowIncrFrac*float64(h.nSize))
		if h.maxNSize-h.nSize >= change {
			h.nSize += change
		}
	} else if nodeOccup < h.cfg.NShrinkFrac {
		h.nSize -= h.cfg.NShrinkIncrMin + int(h.cfg.NShrinkIncrFrac*float64(h.nSize))
		if h.nSize < nNeeded {
			if nNeeded < h.maxNSize {
				h.nSize = nNeeded
			} else {
				h.nSize = h.maxNSize
			}
		}
		if h.nSize < h.origNSize {
			h.nSize = h.origNSize
		}
	}

	if vectOccup > 1.0 && vNeeded < h.maxVSize {
		h.vSize = vNeeded
	}
	if vectOccup > h.cfg.VGrowFrac {
		// note: the vector grow increment scales off the node trigger
		change := h.cfg.VGrowIncrMin + int(h.cfg.VGrowIncrFrac*float64(h.nSize))
		if h.maxVSize-h.vSize >= change {
			h.vSize += change
		}
	} else if vectOccup < h.cfg.VShrinkFrac {
		h.vSize -= h.cfg.VShrinkIncrMin + int(h.cfg.VShrinkIncrFrac*float64(h.vSize))
		if h.vSize < vNeeded {
			h.vSize = vNeeded
		}
		if h.vSize < h.origVSize {
			h.vSize = h.origVSize
		}
	}
}

// checkNodeCounts verifies that every node sits on a list matching its
// class and generation. Compiled out unless gcAsserts is set.
func (h *Heap) checkNodeCounts() {
	for i := range h.classes {
		c := &h.classes[i]
		for s := c.newSpace().next; s != c.newSpace(); s = s.next {
			if int(s.class) != i {
				heapPanic("heap: inconsistent class assignment for node")
			}
		}
		for gen := 0; gen < numOldGenerations; gen++ {
			// oldCount covers the old list plus its old-to-new subset
			count := 0
			for s := c.old(gen).next; s != c.old(gen); s = s.next {
				count++
				if int(s.class) != i || int(s.gen) != gen {
					heapPanic("heap: node on wrong generation list")
				}
			}
			for s := c.oldToNew(gen).next; s != c.oldToNew(gen); s = s.next {
				count++
				if int(s.class) != i || int(s.gen) != gen {
					heapPanic("heap: node on wrong old-to-new list")
				}
			}
			if count != c.oldCount[gen] {
				heapPanic("heap: generation count out of sync")
			}
		}
	}
}
