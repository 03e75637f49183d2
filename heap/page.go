package heap

import "unsafe"

// Node classes. Non-vector nodes are class 0. Small vector nodes live in
// classes 1..numSmallNodeClasses-1, whose slots carry a fixed number of
// 8-byte vector cells. Large vector nodes are class largeNodeClass and are
// allocated individually.
const (
	numNodeClasses      = 8
	largeNodeClass      = numNodeClasses - 1
	numSmallNodeClasses = numNodeClasses - 1

	numOldGenerations = 2

	vecCellBytes = 8

	// basePageSize is the raw page allocation unit; the usable payload is
	// the largest whole number of slots that fits after the page header.
	basePageSize = 2000
)

// nodeClassSize is the number of vector cells in slots of each small class.
var nodeClassSize = [numSmallNodeClasses]int{0, 1, 2, 4, 6, 8, 16}

var (
	nodeHeaderBytes = int(unsafe.Sizeof(Node{}))
	pageHeaderBytes = int(unsafe.Sizeof(uintptr(0)))
)

func align8(n int) int { return (n + 7) &^ 7 }

// slotSize returns the slot size in bytes for a small node class.
func slotSize(class int) int {
	if class == 0 {
		return nodeHeaderBytes
	}
	return align8(nodeHeaderBytes) + nodeClassSize[class]*vecCellBytes
}

// slotsPerPage returns how many slots of the given class fit on one page.
func slotsPerPage(class int) int {
	return (basePageSize - pageHeaderBytes) / slotSize(class)
}

// pageHeader heads one slab page. Slots are node headers backed by a single
// allocation so their addresses stay stable for the life of the page.
type pageHeader struct {
	next  *pageHeader
	slots []Node
}

// classHeap is the per-class portion of the heap: one old and one
// old-to-new list per generation, the new-space list, the free cursor into
// it, and the page chain.
type classHeap struct {
	oldPeg      [numOldGenerations]Node
	oldToNewPeg [numOldGenerations]Node
	newPeg      Node

	free *Node // cursor into the new-space list

	oldCount   [numOldGenerations]int
	allocCount int
	pageCount  int

	pages *pageHeader
}

func (c *classHeap) old(gen int) *Node      { return &c.oldPeg[gen] }
func (c *classHeap) oldToNew(gen int) *Node { return &c.oldToNewPeg[gen] }
func (c *classHeap) newSpace() *Node        { return &c.newPeg }

// getNewPage allocates a slab page for a small node class and splices every
// slot into the class's new space, leaving the free cursor on the last slot
// spliced in, which sits right after the slots already allocated.
func (h *Heap) getNewPage(class int) {
	c := &h.classes[class]

	page := &pageHeader{
		next:  c.pages,
		slots: make([]Node, slotsPerPage(class)),
	}
	c.pages = page
	c.pageCount++

	base := c.newSpace()
	for i := range page.slots {
		s := &page.slots[i]
		c.allocCount++
		snap(s, base)
		s.class = uint8(class)
		base = s
		c.free = s
	}
}

// releasePage unsnaps every slot of a page and drops it from the class's
// accounting. The caller unlinks it from the page chain.
func (h *Heap) releasePage(page *pageHeader, class int) {
	c := &h.classes[class]
	for i := range page.slots {
		unsnap(&page.slots[i])
		c.allocCount--
	}
	c.pageCount--
}

// tryToReleasePages releases surplus empty pages. It runs every
// PageReleaseFreq level>=1 collections; for each class it keeps free nodes
// for up to MaxKeepFrac times the in-use count and walks the page chain
// releasing pages whose slots are all unmarked.
func (h *Heap) tryToReleasePages() {
	if h.releaseCount > 0 {
		h.releaseCount--
		return
	}
	h.releaseCount = h.cfg.PageReleaseFreq - 1

	for i := 0; i < numSmallNodeClasses; i++ {
		c := &h.classes[i]
		perPage := slotsPerPage(i)

		maxrel := c.allocCount
		for gen := 0; gen < numOldGenerations; gen++ {
			maxrel -= int((1.0 + h.cfg.MaxKeepFrac) * float64(c.oldCount[gen]))
		}
		maxrelPages := 0
		if maxrel > 0 {
			maxrelPages = maxrel / perPage
		}

		// all nodes in new space are both free and unmarked
		relPages := 0
		var last *pageHeader
		for page := c.pages; relPages < maxrelPages && page != nil; {
			next := page.next
			inUse := false
			for j := range page.slots {
				if page.slots[j].mark {
					inUse = true
					break
				}
			}
			if !inUse {
				h.releasePage(page, i)
				if last == nil {
					c.pages = next
				} else {
					last.next = next
				}
				relPages++
			} else {
				last = page
			}
			page = next
		}
		c.free = c.newSpace().next
	}
}
