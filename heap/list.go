package heap

// Generation lists are circular and doubly linked, anchored at dummy peg
// nodes. The double linking removes nodes in constant time and the
// circularity eliminates end checks; the arrangement follows Baker's
// non-moving in-place collector.

// initPeg makes a peg node into an empty circular list.
func initPeg(peg *Node) {
	peg.next = peg
	peg.prev = peg
}

// unsnap removes s from whatever list it is on.
func unsnap(s *Node) {
	next := s.next
	prev := s.prev
	prev.next = next
	next.prev = prev
}

// snap inserts s immediately before t.
func snap(s, t *Node) {
	prev := t.prev
	s.next = t
	t.prev = s
	prev.next = s
	s.prev = prev
}

// bulkMove transfers the entire membership of the from list onto the to
// list and leaves the from list empty.
func bulkMove(from, to *Node) {
	if from.next == from {
		return
	}
	firstOld := from.next
	lastOld := from.prev
	firstNew := to.next
	firstOld.prev = to
	to.next = firstOld
	firstNew.prev = lastOld
	lastOld.next = firstNew
	from.next = from
	from.prev = from
}

// listEmpty reports whether the list anchored at peg has no members.
func listEmpty(peg *Node) bool {
	return peg.next == peg
}

// listLen counts the members of the list anchored at peg. Used by
// consistency checks and tests only.
func listLen(peg *Node) int {
	n := 0
	for s := peg.next; s != peg; s = s.next {
		n++
	}
	return n
}

// onList reports whether s is a member of the list anchored at peg.
func onList(s, peg *Node) bool {
	for t := peg.next; t != peg; t = t.next {
		if t == s {
			return true
		}
	}
	return false
}

// forward marks an unmarked node, detaches it from its current list and
// prepends it to the worklist, which is singly linked through next. Nil and
// already-marked nodes are left alone.
func forward(s *Node, worklist **Node) {
	if s != nil && !s.mark {
		s.mark = true
		unsnap(s)
		s.next = *worklist
		*worklist = s
	}
}
