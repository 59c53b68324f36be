package btree

// pathFrame records one step of a descent: the internal page visited and
// the index of the child chosen. Descent collects these from the root
// down, so that split and underflow propagation can walk back up as a
// loop over the stack from its end instead of recursive calls.
type pathFrame struct {
	pageID     uint32
	childIndex int
}

// childIndexFor applies the fixed descent rule for the "separator =
// smallest key in the right child" convention: pick the greatest index i
// such that key[i] <= target; if no slot qualifies (target is smaller
// than every recorded key, i.e. a new global minimum is being inserted),
// fall back to the leftmost child, index 0.
func childIndexFor(page *Page, target []byte) int {
	index, found := page.Find(target)
	if found {
		return index
	}
	// Find returned the insertion point: the first index whose key is
	// greater than target. The greatest index with key <= target is one
	// less, or 0 if target is smaller than everything recorded.
	if index == 0 {
		return 0
	}
	return index - 1
}

// descend walks from the root to the leaf that would hold key, recording
// the path taken through internal pages. Every page visited, including
// the returned leaf, is pinned; callers must unpin the leaf and the path
// once done with them.
func (t *BTree) descend(key []byte) (leaf *Page, path []pathFrame, err error) {
	id := t.pager.RootID()
	var stack []pathFrame
	for {
		page, err := t.pager.Get(id)
		if err != nil {
			t.unwindPins(stack)
			return nil, nil, err
		}
		if page.IsLeaf() {
			return page, stack, nil
		}
		childIndex := childIndexFor(page, key)
		childID := page.ChildAt(childIndex)
		stack = append(stack, pathFrame{pageID: id, childIndex: childIndex})
		id = childID
	}
}

// unwindPins releases every page pinned while descending, used once a
// caller is done consuming the path (on success) or a traversal aborts
// partway through (on error).
func (t *BTree) unwindPins(path []pathFrame) {
	for _, f := range path {
		t.pager.Unpin(f.pageID)
	}
}

// leftmostLeaf descends to the leftmost leaf of the subtree rooted at id.
func (t *BTree) leftmostLeaf(id uint32) (leaf *Page, path []pathFrame, err error) {
	var stack []pathFrame
	for {
		page, err := t.pager.Get(id)
		if err != nil {
			t.unwindPins(stack)
			return nil, nil, err
		}
		if page.IsLeaf() {
			return page, stack, nil
		}
		childID := page.ChildAt(0)
		stack = append(stack, pathFrame{pageID: id, childIndex: 0})
		id = childID
	}
}

// rightmostLeaf descends to the rightmost leaf of the subtree rooted at id.
func (t *BTree) rightmostLeaf(id uint32) (leaf *Page, path []pathFrame, err error) {
	var stack []pathFrame
	for {
		page, err := t.pager.Get(id)
		if err != nil {
			t.unwindPins(stack)
			return nil, nil, err
		}
		if page.IsLeaf() {
			return page, stack, nil
		}
		last := page.Count() - 1
		childID := page.ChildAt(last)
		stack = append(stack, pathFrame{pageID: id, childIndex: last})
		id = childID
	}
}
