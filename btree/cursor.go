package btree

// Cursor offers convenient sequential (or reverse) iteration over a key
// range, built entirely on the tree's stateless min/max/above/below
// primitives. Each step is a fresh O(log n) descent rather than an
// amortised O(1) one a path-caching cursor could offer — a deliberate
// simplicity trade-off, since no page pins are held between calls.
type Cursor struct {
	tree    *BTree
	key     []byte
	value   []byte
	hasItem bool
	err     error
	closed  bool
	reverse bool
}

// NewCursor returns an unpositioned cursor over tree.
func (t *BTree) NewCursor() *Cursor {
	return &Cursor{tree: t}
}

// SeekFirst positions the cursor at the smallest key and sets the
// iteration direction to ascending.
func (c *Cursor) SeekFirst() bool {
	c.reverse = false
	return c.land(c.tree.Min())
}

// SeekLast positions the cursor at the largest key and sets the
// iteration direction to descending.
func (c *Cursor) SeekLast() bool {
	c.reverse = true
	return c.land(c.tree.Max())
}

// Seek positions the cursor at the smallest key greater than or equal to
// target, ascending from there.
func (c *Cursor) Seek(target []byte) bool {
	c.reverse = false
	if c.closed {
		return false
	}
	value, found, err := c.tree.Lookup(target)
	if err != nil {
		c.err = err
		c.hasItem = false
		return false
	}
	if found {
		c.key, c.value, c.hasItem = cloneBytes(target), value, true
		return true
	}
	return c.land(c.tree.Above(target))
}

// Next advances to the next key in the cursor's current direction.
func (c *Cursor) Next() bool {
	if c.closed || !c.hasItem {
		return false
	}
	if c.reverse {
		return c.land(c.tree.Below(c.key))
	}
	return c.land(c.tree.Above(c.key))
}

func (c *Cursor) land(key, value []byte, ok bool, err error) bool {
	if c.closed {
		return false
	}
	if err != nil {
		c.err = err
		c.hasItem = false
		return false
	}
	c.key, c.value, c.hasItem = key, value, ok
	return ok
}

// Key returns the current key, valid only after a positioning call or
// Next returns true.
func (c *Cursor) Key() []byte { return c.key }

// Value returns the current value.
func (c *Cursor) Value() []byte { return c.value }

// Error returns the first error encountered, if any.
func (c *Cursor) Error() error { return c.err }

// Close releases the cursor. Since no pages are pinned between calls,
// this is a formality kept for parity with a handle-based iterator API.
func (c *Cursor) Close() error {
	c.closed = true
	return nil
}
