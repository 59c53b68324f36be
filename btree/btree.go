package btree

import (
	"sync/atomic"

	"go.uber.org/zap"

	"yakv/common"
)

const (
	// DefaultPageSize matches the common OS page size.
	DefaultPageSize = 4096

	// DefaultUnderflowRatio is the fraction of a page's usable byte
	// capacity below which a non-root page is considered underfull.
	DefaultUnderflowRatio = 1.0 / 3.0

	// minEntriesPerPage is the number of same-sized entries a page must
	// have room for; it bounds the largest single entry this
	// configuration will accept.
	minEntriesPerPage = 4
)

// Config holds the tree engine's tunables, set at create time. On open,
// PageSize is ignored in favour of the page size in the file header.
type Config struct {
	PageSize       int
	CacheCapacity  int
	UnderflowRatio float64
	Logger         *zap.Logger
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:       DefaultPageSize,
		CacheCapacity:  DefaultCacheCapacity,
		UnderflowRatio: DefaultUnderflowRatio,
		Logger:         zap.NewNop(),
	}
}

// BTree is the tree engine: root maintenance, descent, split-on-overflow,
// merge/redistribute-on-underflow, and the stateless cursor operations
// min/max/above/below.
type BTree struct {
	pager          *Pager
	underflowRatio float64
	maxEntrySize   int
	log            *zap.Logger

	numKeys    atomic.Int64
	readCount  atomic.Int64
	writeCount atomic.Int64
}

// maxEntrySize bounds key_len+val_len so that a page can always hold at
// least minEntriesPerPage same-sized entries.
func maxEntrySize(pageSize int) int {
	return (pageSize-HeaderSize)/minEntriesPerPage - SlotSize
}

// CreateTree initialises a brand-new database file.
func CreateTree(path string, cfg Config) (*BTree, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pager, err := Create(path, cfg.PageSize, cfg.CacheCapacity, log)
	if err != nil {
		return nil, err
	}
	return &BTree{
		pager:          pager,
		underflowRatio: cfg.UnderflowRatio,
		maxEntrySize:   maxEntrySize(cfg.PageSize),
		log:            log,
	}, nil
}

// OpenTree opens an existing database file, validating its header.
func OpenTree(path string, cfg Config) (*BTree, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pager, err := Open(path, cfg.CacheCapacity, log)
	if err != nil {
		return nil, err
	}
	return &BTree{
		pager:          pager,
		underflowRatio: cfg.UnderflowRatio,
		maxEntrySize:   maxEntrySize(pager.PageSize()),
		log:            log,
	}, nil
}

// Lookup returns the value stored for key, if any.
func (t *BTree) Lookup(key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, common.ErrKeyEmpty
	}
	t.readCount.Add(1)

	leaf, path, err := t.descend(key)
	if err != nil {
		return nil, false, err
	}
	defer t.unwindPins(path)
	defer t.pager.Unpin(leaf.ID())

	index, found := leaf.Find(key)
	if !found {
		return nil, false, nil
	}
	entry := leaf.Get(index)
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	return value, true, nil
}

// Insert adds or overwrites key's value.
func (t *BTree) Insert(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	if len(key)+len(value) > t.maxEntrySize {
		return common.ErrEntryTooLarge
	}
	t.writeCount.Add(1)

	leaf, path, err := t.descend(key)
	if err != nil {
		return err
	}
	defer t.unwindPins(path)
	defer t.pager.Unpin(leaf.ID())

	_, overwrote := leaf.Find(key)
	oldMin, hadOldMin := leaf.Min()
	var oldMinKey []byte
	if hadOldMin {
		oldMinKey = append([]byte(nil), oldMin.Key...)
	}

	if err := t.insertWithSplit(leaf, path, key, value, hadOldMin, oldMinKey); err != nil {
		return err
	}
	if !overwrote {
		t.numKeys.Add(1)
	}
	return nil
}

// Remove deletes key if present, reports whether it was present, and
// rebalances underflowing pages on the way back up.
func (t *BTree) Remove(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, common.ErrKeyEmpty
	}
	t.writeCount.Add(1)

	leaf, path, err := t.descend(key)
	if err != nil {
		return false, err
	}
	defer t.unwindPins(path)
	defer t.pager.Unpin(leaf.ID())

	index, found := leaf.Find(key)
	if !found {
		return false, nil
	}
	if err := leaf.Delete(index); err != nil {
		return false, err
	}
	t.pager.MarkDirty(leaf.ID())
	t.numKeys.Add(-1)

	if err := t.rebalanceAfterDelete(leaf, path); err != nil {
		return true, err
	}
	return true, nil
}

// Min returns the smallest key/value in the tree.
func (t *BTree) Min() ([]byte, []byte, bool, error) {
	leaf, path, err := t.leftmostLeaf(t.pager.RootID())
	if err != nil {
		return nil, nil, false, err
	}
	defer t.unwindPins(path)
	defer t.pager.Unpin(leaf.ID())

	entry, ok := leaf.Min()
	if !ok {
		return nil, nil, false, nil
	}
	return cloneBytes(entry.Key), cloneBytes(entry.Value), true, nil
}

// Max returns the largest key/value in the tree.
func (t *BTree) Max() ([]byte, []byte, bool, error) {
	leaf, path, err := t.rightmostLeaf(t.pager.RootID())
	if err != nil {
		return nil, nil, false, err
	}
	defer t.unwindPins(path)
	defer t.pager.Unpin(leaf.ID())

	entry, ok := leaf.Max()
	if !ok {
		return nil, nil, false, nil
	}
	return cloneBytes(entry.Key), cloneBytes(entry.Value), true, nil
}

// Above returns the strict successor of key: the smallest key greater
// than key, if any.
func (t *BTree) Above(key []byte) ([]byte, []byte, bool, error) {
	leaf, path, err := t.descend(key)
	if err != nil {
		return nil, nil, false, err
	}
	index, found := leaf.Find(key)
	if found {
		// Find's exact match sits at index; the strict successor is
		// one past it.
		index++
	}
	if index < leaf.Count() {
		entry := leaf.Get(index)
		k, v := cloneBytes(entry.Key), cloneBytes(entry.Value)
		t.unwindPins(path)
		t.pager.Unpin(leaf.ID())
		return k, v, true, nil
	}
	t.pager.Unpin(leaf.ID())

	k, v, ok, err := t.nextLeafEntry(path)
	t.unwindPins(path)
	return k, v, ok, err
}

// Below returns the strict predecessor of key: the largest key smaller
// than key, if any.
func (t *BTree) Below(key []byte) ([]byte, []byte, bool, error) {
	leaf, path, err := t.descend(key)
	if err != nil {
		return nil, nil, false, err
	}
	index, _ := leaf.Find(key)
	index--
	if index >= 0 {
		entry := leaf.Get(index)
		k, v := cloneBytes(entry.Key), cloneBytes(entry.Value)
		t.unwindPins(path)
		t.pager.Unpin(leaf.ID())
		return k, v, true, nil
	}
	t.pager.Unpin(leaf.ID())

	k, v, ok, err := t.prevLeafEntry(path)
	t.unwindPins(path)
	return k, v, ok, err
}

// nextLeafEntry walks back up path looking for an ancestor where the
// descended child was not the last one, then descends that ancestor's
// next child to its leftmost leaf.
func (t *BTree) nextLeafEntry(path []pathFrame) ([]byte, []byte, bool, error) {
	for i := len(path) - 1; i >= 0; i-- {
		frame := path[i]
		page, ok := t.pager.Peek(frame.pageID)
		if !ok {
			return nil, nil, false, &common.CorruptError{PageID: frame.pageID, Detail: "ancestor not resident"}
		}
		if frame.childIndex+1 >= page.Count() {
			continue
		}
		childID := page.ChildAt(frame.childIndex + 1)
		leaf, subPath, err := t.leftmostLeaf(childID)
		if err != nil {
			return nil, nil, false, err
		}
		entry, ok := leaf.Min()
		t.unwindPins(subPath)
		t.pager.Unpin(leaf.ID())
		if !ok {
			return nil, nil, false, nil
		}
		return cloneBytes(entry.Key), cloneBytes(entry.Value), true, nil
	}
	return nil, nil, false, nil
}

// prevLeafEntry is nextLeafEntry's mirror image for Below.
func (t *BTree) prevLeafEntry(path []pathFrame) ([]byte, []byte, bool, error) {
	for i := len(path) - 1; i >= 0; i-- {
		frame := path[i]
		page, ok := t.pager.Peek(frame.pageID)
		if !ok {
			return nil, nil, false, &common.CorruptError{PageID: frame.pageID, Detail: "ancestor not resident"}
		}
		if frame.childIndex-1 < 0 {
			continue
		}
		childID := page.ChildAt(frame.childIndex - 1)
		leaf, subPath, err := t.rightmostLeaf(childID)
		if err != nil {
			return nil, nil, false, err
		}
		entry, ok := leaf.Max()
		t.unwindPins(subPath)
		t.pager.Unpin(leaf.ID())
		if !ok {
			return nil, nil, false, nil
		}
		return cloneBytes(entry.Key), cloneBytes(entry.Value), true, nil
	}
	return nil, nil, false, nil
}

// Flush writes every dirty page and the header to disk.
func (t *BTree) Flush() error {
	return t.pager.Flush()
}

// Close flushes and releases the underlying file.
func (t *BTree) Close() error {
	return t.pager.Close()
}

// Stats reports basic resource usage.
func (t *BTree) Stats() common.Stats {
	free := 0
	for id := t.pager.header.FreeHead; id != NoFreePage; {
		free++
		next, err := t.pager.freeListNext(id)
		if err != nil {
			break
		}
		id = next
	}
	return common.Stats{
		NumKeys:       t.numKeys.Load(),
		NumPages:      int(t.pager.io.numPages),
		TotalDiskSize: int64(t.pager.io.numPages) * int64(t.pager.io.pageSize),
		FreePages:     free,
		WriteCount:    t.writeCount.Load(),
		ReadCount:     t.readCount.Load(),
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
