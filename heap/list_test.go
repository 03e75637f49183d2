package heap

import "testing"

func TestSnapUnsnap(t *testing.T) {
	var peg, a, b Node
	initPeg(&peg)

	if !listEmpty(&peg) {
		t.Fatal("fresh peg is not empty")
	}

	snap(&a, &peg)
	snap(&b, &peg)
	if got := listLen(&peg); got != 2 {
		t.Fatalf("listLen = %d, want 2", got)
	}
	if peg.next != &a || a.next != &b || b.next != &peg {
		t.Error("snap built the wrong order")
	}

	unsnap(&a)
	if got := listLen(&peg); got != 1 {
		t.Fatalf("listLen after unsnap = %d, want 1", got)
	}
	if onList(&a, &peg) {
		t.Error("unsnapped node still on list")
	}

	unsnap(&b)
	if !listEmpty(&peg) {
		t.Error("list not empty after removing both nodes")
	}
}

func TestBulkMove(t *testing.T) {
	var from, to Node
	initPeg(&from)
	initPeg(&to)

	var nodes [5]Node
	for i := range nodes {
		snap(&nodes[i], &from)
	}
	var keeper Node
	snap(&keeper, &to)

	bulkMove(&from, &to)
	if !listEmpty(&from) {
		t.Error("source list not empty after bulk move")
	}
	if got := listLen(&to); got != 6 {
		t.Errorf("target listLen = %d, want 6", got)
	}
	for i := range nodes {
		if !onList(&nodes[i], &to) {
			t.Errorf("node %d missing from target list", i)
		}
	}

	// moving an empty list is a no-op
	bulkMove(&from, &to)
	if got := listLen(&to); got != 6 {
		t.Errorf("listLen after empty bulk move = %d, want 6", got)
	}
}

func TestForward(t *testing.T) {
	var peg, a Node
	initPeg(&peg)
	snap(&a, &peg)

	var worklist *Node
	forward(&a, &worklist)
	if !a.mark {
		t.Error("forward did not mark the node")
	}
	if onList(&a, &peg) {
		t.Error("forwarded node still on its list")
	}
	if worklist != &a {
		t.Error("forwarded node not on the worklist")
	}

	// marked nodes and nil are left alone
	head := worklist
	forward(&a, &worklist)
	forward(nil, &worklist)
	if worklist != head || a.next != nil {
		t.Error("forward touched a marked node or nil")
	}
}
