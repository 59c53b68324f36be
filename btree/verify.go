package btree

import (
	"bytes"
	"fmt"
)

// Verify walks the whole tree plus the free list and reports every
// structural invariant violation found. It is a read-only diagnostic for
// tests, never called from the tree's own operations.
func Verify(t *BTree) []error {
	v := &verifier{tree: t, reachable: make(map[uint32]bool)}
	v.walk(t.pager.RootID(), nil, nil, 0)
	v.checkFreeList()
	return v.errs
}

type verifier struct {
	tree      *BTree
	errs      []error
	reachable map[uint32]bool
	sawLeaf   bool
	leafDepth int
}

func (v *verifier) fail(format string, args ...interface{}) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

// walk visits the subtree rooted at id, checking per-page sortedness
// (V2), the byte-occupancy floor (V3), parent pointers (V4), and
// separator bracketing (V5) against the bounds inherited from its
// ancestors, and records id for the V6 free-list/reachable partition
// check. depth counts levels from the root, for the V1 equal-leaf-depth
// check. lowKey/highKey are nil when unbounded.
func (v *verifier) walk(id uint32, lowKey, highKey []byte, depth int) {
	if v.reachable[id] {
		v.fail("page %d reached more than once", id)
		return
	}
	v.reachable[id] = true

	page, err := v.tree.pager.Get(id)
	if err != nil {
		v.fail("page %d: %v", id, err)
		return
	}
	defer v.tree.pager.Unpin(id)

	if id == v.tree.pager.RootID() {
		if page.ParentID() != NoParent {
			v.fail("root page %d: parent id %d, want none", id, page.ParentID())
		}
	}

	n := page.Count()
	var prev []byte
	for i := 0; i < n; i++ {
		e := page.Get(i)
		if i > 0 && bytes.Compare(e.Key, prev) <= 0 {
			v.fail("page %d: slot %d out of order or duplicate", id, i)
		}
		prev = append([]byte(nil), e.Key...)
		if lowKey != nil && bytes.Compare(e.Key, lowKey) < 0 {
			v.fail("page %d: slot %d key below its subtree's lower bound", id, i)
		}
		if highKey != nil && bytes.Compare(e.Key, highKey) >= 0 {
			v.fail("page %d: slot %d key at or above its subtree's upper bound", id, i)
		}
	}

	if id != v.tree.pager.RootID() {
		if page.OccupiedBytes() < v.tree.threshold(page.Capacity()) {
			v.fail("page %d: underfull (occupied=%d threshold=%d)", id, page.OccupiedBytes(), v.tree.threshold(page.Capacity()))
		}
	}

	if page.IsLeaf() {
		if !v.sawLeaf {
			v.sawLeaf = true
			v.leafDepth = depth
		} else if depth != v.leafDepth {
			v.fail("page %d: leaf at depth %d, want %d", id, depth, v.leafDepth)
		}
		return
	}

	for i := 0; i < n; i++ {
		childID := page.ChildAt(i)

		child, err := v.tree.pager.Get(childID)
		if err != nil {
			v.fail("page %d: child %d: %v", id, childID, err)
			continue
		}
		if child.ParentID() != id {
			v.fail("page %d: child %d has parent id %d", id, childID, child.ParentID())
		}
		v.tree.pager.Unpin(childID)

		childLow := lowKey
		if i > 0 {
			childLow = page.Get(i).Key
		}
		var childHigh []byte
		if i+1 < n {
			childHigh = page.Get(i + 1).Key
		} else {
			childHigh = highKey
		}
		v.walk(childID, childLow, childHigh, depth+1)
	}
}

// checkFreeList verifies V6: the free list and the set of pages
// reachable from the root exactly partition every non-header page id.
func (v *verifier) checkFreeList() {
	onFreeList := make(map[uint32]bool)
	for id := v.tree.pager.header.FreeHead; id != NoFreePage; {
		if onFreeList[id] {
			v.fail("free list cycles back to page %d", id)
			return
		}
		onFreeList[id] = true
		if v.reachable[id] {
			v.fail("page %d is both reachable and on the free list", id)
		}
		next, err := v.tree.pager.freeListNext(id)
		if err != nil {
			v.fail("free list: %v", err)
			return
		}
		id = next
	}

	total := v.tree.pager.io.numPages
	for id := uint32(1); id < total; id++ {
		if !v.reachable[id] && !onFreeList[id] {
			v.fail("page %d is neither reachable nor on the free list", id)
		}
	}
}
