package btree

import (
	"bytes"

	"yakv/common"
)

// insertWithSplit performs the in-page put and, on overflow, splits the
// page and propagates the new separator up the path stack — a loop over
// the popped stack, not recursion, per the tree engine's design. It also
// propagates a new global-minimum key up the leftmost spine when the
// inserted key displaces the prior minimum.
func (t *BTree) insertWithSplit(leaf *Page, path []pathFrame, key, value []byte, hadOldMin bool, oldMin []byte) error {
	if err := leaf.Put(key, value); err == nil {
		t.pager.MarkDirty(leaf.ID())
		return t.propagateMinKeyIfNeeded(path, hadOldMin, oldMin, key)
	} else if err != ErrPageFull {
		return err
	}

	left := leaf
	curKey, curValue := key, value
	var curChild *Page
	idx := len(path)

	for {
		sep, right, err := t.splitPage(left)
		if err != nil {
			return err
		}

		target := left
		if bytes.Compare(curKey, sep) >= 0 {
			target = right
		}
		if err := target.Put(curKey, curValue); err != nil {
			return err
		}
		if curChild != nil {
			curChild.SetParentID(target.ID())
			t.pager.MarkDirty(curChild.ID())
		}
		t.pager.MarkDirty(left.ID())
		t.pager.MarkDirty(right.ID())

		if idx == 0 {
			if err := t.growRoot(left, sep, right); err != nil {
				return err
			}
			break
		}

		idx--
		frame := path[idx]
		parent, ok := t.pager.Peek(frame.pageID)
		if !ok {
			return &common.CorruptError{PageID: frame.pageID, Detail: "parent page not resident during split propagation"}
		}
		right.SetParentID(parent.ID())
		t.pager.MarkDirty(right.ID())

		if err := parent.Put(sep, EncodeChildID(right.ID())); err == nil {
			t.pager.MarkDirty(parent.ID())
			break
		} else if err != ErrPageFull {
			return err
		}

		// Parent overflowed too: its separator for `right` becomes the
		// next entry to propagate, and the parent itself is now the
		// page being split.
		curKey, curValue = sep, EncodeChildID(right.ID())
		curChild = right
		left = parent
	}

	return t.propagateMinKeyIfNeeded(path, hadOldMin, oldMin, key)
}

// splitPage divides a full page in two at its byte-occupancy midpoint
// (ties favour the left half), allocating a new right sibling. It
// returns the right sibling's first key — the separator under the fixed
// "separator = smallest key of right child" convention — and the
// sibling itself.
func (t *BTree) splitPage(page *Page) ([]byte, *Page, error) {
	entries := page.CloneEntries()
	mid := page.SplitPoint()
	if mid <= 0 {
		mid = 1
	}
	if mid >= len(entries) {
		mid = len(entries) - 1
	}
	leftEntries, rightEntries := entries[:mid], entries[mid:]

	right, err := t.pager.Allocate(page.IsLeaf())
	if err != nil {
		return nil, nil, err
	}
	right.SetParentID(page.ParentID())

	page.Reset()
	if err := page.PutAll(leftEntries); err != nil {
		return nil, nil, err
	}
	if err := right.PutAll(rightEntries); err != nil {
		return nil, nil, err
	}

	if !page.IsLeaf() {
		for i := 0; i < right.Count(); i++ {
			childID := right.ChildAt(i)
			child, err := t.pager.Get(childID)
			if err != nil {
				return nil, nil, err
			}
			child.SetParentID(right.ID())
			t.pager.MarkDirty(child.ID())
			t.pager.Unpin(child.ID())
		}
	}

	sep := append([]byte(nil), rightEntries[0].Key...)
	t.pager.MarkDirty(page.ID())
	t.pager.MarkDirty(right.ID())
	return sep, right, nil
}

// growRoot builds a new root with two children when the prior root
// itself split, and points the file header at it.
func (t *BTree) growRoot(left *Page, sep []byte, right *Page) error {
	newRoot, err := t.pager.Allocate(false)
	if err != nil {
		return err
	}
	leftMin, ok := left.Min()
	if !ok {
		return &common.CorruptError{PageID: left.ID(), Detail: "left half of a root split has no entries"}
	}
	if err := newRoot.Put(leftMin.Key, EncodeChildID(left.ID())); err != nil {
		return err
	}
	if err := newRoot.Put(sep, EncodeChildID(right.ID())); err != nil {
		return err
	}
	left.SetParentID(newRoot.ID())
	right.SetParentID(newRoot.ID())
	t.pager.MarkDirty(left.ID())
	t.pager.MarkDirty(right.ID())
	t.pager.MarkDirty(newRoot.ID())
	t.pager.SetRootID(newRoot.ID())
	return nil
}

// propagateMinKeyIfNeeded rewrites the leftmost spine's separators when
// an insert introduces a new global minimum key. Under the fixed
// separator convention this can only happen for ancestors reached via
// child index 0, and only for the entry actually inserted — a split
// never relocates the subtree's minimum relative to its ancestors, so a
// single check against the leaf's pre-insert minimum suffices.
func (t *BTree) propagateMinKeyIfNeeded(path []pathFrame, hadOldMin bool, oldMin, newKey []byte) error {
	if hadOldMin && bytes.Compare(newKey, oldMin) >= 0 {
		return nil
	}
	for i := len(path) - 1; i >= 0; i-- {
		frame := path[i]
		if frame.childIndex != 0 {
			break
		}
		page, ok := t.pager.Peek(frame.pageID)
		if !ok {
			return &common.CorruptError{PageID: frame.pageID, Detail: "ancestor not resident during min-key propagation"}
		}
		entry := page.Get(0)
		if bytes.Equal(entry.Key, newKey) {
			break
		}
		child := page.ChildAt(0)
		if err := page.Delete(0); err != nil {
			return err
		}
		if err := page.Put(newKey, EncodeChildID(child)); err != nil {
			return err
		}
		t.pager.MarkDirty(page.ID())
	}
	return nil
}
