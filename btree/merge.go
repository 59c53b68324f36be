package btree

import (
	"yakv/common"
)

// threshold is the byte-occupancy floor below which a non-root page is
// considered underfull.
func (t *BTree) threshold(capacity int) int {
	return int(float64(capacity) * t.underflowRatio)
}

func (t *BTree) underflows(page *Page) bool {
	return page.OccupiedBytes() < t.threshold(page.Capacity())
}

// canRedistribute reports whether two adjacent siblings (left before
// right) can be rebalanced by rebalancePair without either becoming
// underfull: splitting their combined entries at the byte-occupancy
// midpoint must leave both halves at or above the underflow threshold.
func (t *BTree) canRedistribute(left, right *Page) bool {
	combined := append(left.CloneEntries(), right.CloneEntries()...)
	if len(combined) < 2 {
		return false
	}
	mid := min(max(combinedSplitPoint(combined), 1), len(combined)-1)
	leftBytes, total := 0, 0
	for i, e := range combined {
		total += len(e.Key) + len(e.Value) + SlotSize
		if i < mid {
			leftBytes = total
		}
	}
	floor := t.threshold(left.Capacity())
	return leftBytes >= floor && total-leftBytes >= floor
}

// rebalanceAfterDelete walks back up the path stack from a leaf that just
// lost an entry, redistributing or merging any page found underfull, and
// collapsing the root if it ends up with a single child. This is a loop
// over the stack, not recursion, matching the rest of the tree engine's
// descent/propagation style.
func (t *BTree) rebalanceAfterDelete(leaf *Page, path []pathFrame) error {
	current := leaf
	idx := len(path)

	for {
		if idx == 0 {
			return t.maybeCollapseRoot(current)
		}
		if !t.underflows(current) {
			return nil
		}

		frame := path[idx-1]
		parent, ok := t.pager.Peek(frame.pageID)
		if !ok {
			return &common.CorruptError{PageID: frame.pageID, Detail: "parent not resident during rebalance"}
		}
		childIndex := frame.childIndex

		leftSib, err := t.fetchSibling(parent, childIndex-1)
		if err != nil {
			return err
		}
		rightSib, err := t.fetchSibling(parent, childIndex+1)
		if err != nil {
			t.unpinIf(leftSib)
			return err
		}

		switch {
		case leftSib != nil && t.canRedistribute(leftSib, current):
			err := t.rebalancePair(parent, leftSib, childIndex, current)
			t.unpinIf(leftSib)
			t.unpinIf(rightSib)
			return err

		case rightSib != nil && t.canRedistribute(current, rightSib):
			err := t.rebalancePair(parent, current, childIndex+1, rightSib)
			t.unpinIf(leftSib)
			t.unpinIf(rightSib)
			return err

		case leftSib != nil:
			err := t.mergePages(parent, leftSib, childIndex, current)
			t.unpinIf(rightSib)
			t.unpinIf(leftSib)
			if err != nil {
				return err
			}

		case rightSib != nil:
			err := t.mergePages(parent, current, childIndex+1, rightSib)
			t.unpinIf(rightSib)
			if err != nil {
				return err
			}

		default:
			// No sibling at all: parent has a single child, which is
			// itself underfull by construction. Continue checking the
			// parent; it will either redistribute/merge higher up or,
			// if it is the root, get collapsed.
		}

		current = parent
		idx--
	}
}

// fetchSibling returns the child of parent at idx, pinned, or nil if idx
// is out of range (no sibling on that side).
func (t *BTree) fetchSibling(parent *Page, idx int) (*Page, error) {
	if idx < 0 || idx >= parent.Count() {
		return nil, nil
	}
	return t.pager.Get(parent.ChildAt(idx))
}

func (t *BTree) unpinIf(p *Page) {
	if p != nil {
		t.pager.Unpin(p.ID())
	}
}

// rebalancePair redistributes entries between two adjacent siblings —
// left positioned immediately before right in the parent's directory —
// by splitting their combined entries at the byte-occupancy midpoint
// (ties favour the left half, matching the split convention). Callers
// check canRedistribute first, so both halves end at or above the
// underflow threshold. The parent's separator for right is rewritten to
// right's new minimum key.
func (t *BTree) rebalancePair(parent, left *Page, rightIdx int, right *Page) error {
	combined := append(left.CloneEntries(), right.CloneEntries()...)
	mid := combinedSplitPoint(combined)
	if mid <= 0 {
		mid = 1
	}
	if mid >= len(combined) {
		mid = len(combined) - 1
	}
	leftEntries, rightEntries := combined[:mid], combined[mid:]

	left.Reset()
	if err := left.PutAll(leftEntries); err != nil {
		return err
	}
	right.Reset()
	if err := right.PutAll(rightEntries); err != nil {
		return err
	}

	if !left.IsLeaf() {
		if err := t.reparentChildren(left); err != nil {
			return err
		}
		if err := t.reparentChildren(right); err != nil {
			return err
		}
	}

	if err := t.updateSeparatorAt(parent, rightIdx, rightEntries[0].Key); err != nil {
		return err
	}
	t.pager.MarkDirty(left.ID())
	t.pager.MarkDirty(right.ID())
	return nil
}

// mergePages combines right's entries into left and frees right. It is
// only reached when no sibling pair passed canRedistribute, i.e. the
// pair's combined occupancy is under twice the underflow threshold plus
// one entry, which fits within one page's capacity at the default
// underflow ratio.
func (t *BTree) mergePages(parent, left *Page, rightIdx int, right *Page) error {
	combined := append(left.CloneEntries(), right.CloneEntries()...)
	left.Reset()
	if err := left.PutAll(combined); err != nil {
		return err
	}
	if !left.IsLeaf() {
		if err := t.reparentChildren(left); err != nil {
			return err
		}
	}
	if err := parent.Delete(rightIdx); err != nil {
		return err
	}
	t.pager.MarkDirty(parent.ID())
	t.pager.MarkDirty(left.ID())
	return t.pager.Free(right.ID())
}

// reparentChildren fixes up the parent pointer of every child referenced
// by page's directory, used after a merge or redistribution moves
// entries between internal pages.
func (t *BTree) reparentChildren(page *Page) error {
	for i := 0; i < page.Count(); i++ {
		childID := page.ChildAt(i)
		child, err := t.pager.Get(childID)
		if err != nil {
			return err
		}
		if child.ParentID() != page.ID() {
			child.SetParentID(page.ID())
			t.pager.MarkDirty(child.ID())
		}
		t.pager.Unpin(child.ID())
	}
	return nil
}

// updateSeparatorAt rewrites the key half of the slot at index, keeping
// its child id, used when a redistribution changes a subtree's minimum
// key without changing which child it points at.
func (t *BTree) updateSeparatorAt(parent *Page, index int, newKey []byte) error {
	child := parent.ChildAt(index)
	if err := parent.Delete(index); err != nil {
		return err
	}
	if err := parent.Put(newKey, EncodeChildID(child)); err != nil {
		return err
	}
	t.pager.MarkDirty(parent.ID())
	return nil
}

// maybeCollapseRoot replaces an internal root holding a single child with
// that child, keeping tree height minimal after cascading merges.
func (t *BTree) maybeCollapseRoot(root *Page) error {
	if root.IsLeaf() || root.Count() != 1 {
		return nil
	}
	childID := root.ChildAt(0)
	child, err := t.pager.Get(childID)
	if err != nil {
		return err
	}
	child.SetParentID(NoParent)
	t.pager.MarkDirty(child.ID())
	t.pager.Unpin(child.ID())

	oldRootID := root.ID()
	t.pager.SetRootID(childID)
	return t.pager.Free(oldRootID)
}

// combinedSplitPoint picks the byte-occupancy midpoint of a combined
// entry list, the same left-tie rule used by Page.SplitPoint.
func combinedSplitPoint(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += len(e.Key) + len(e.Value) + SlotSize
	}
	target := (total + 1) / 2
	acc := 0
	for i, e := range entries {
		acc += len(e.Key) + len(e.Value) + SlotSize
		if acc >= target {
			return i + 1
		}
	}
	if len(entries) == 0 {
		return 0
	}
	return len(entries) - 1
}
