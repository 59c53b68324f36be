package btree

import (
	"container/list"
	"sort"

	"go.uber.org/zap"

	"yakv/common"
)

const (
	// DefaultCacheCapacity is the number of resident pages kept by a
	// freshly-configured pager, chosen so capacity*page_size lands in
	// the low single-digit MiB for the default 4096-byte page size.
	DefaultCacheCapacity = 1024
)

// Pager is the page cache: a fixed-capacity resident map from page id to
// buffer, with LRU eviction, dirty tracking, and pin counting so that
// pages touched by an in-flight descent are never evicted mid-operation.
type Pager struct {
	io       *fileIO
	header   FileHeader
	capacity int

	cache  map[uint32]*Page
	lru    *list.List
	lruPos map[uint32]*list.Element
	pins   map[uint32]int
	dirty  map[uint32]bool

	headerDirty bool
	log         *zap.Logger
}

// Create initialises a brand-new file: header page plus a single empty
// leaf root.
func Create(path string, pageSize, cacheCapacity int, log *zap.Logger) (*Pager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	io_, err := createFileIO(path, pageSize)
	if err != nil {
		return nil, err
	}
	p := newPager(io_, cacheCapacity, log)

	if _, err := io_.grow(); err != nil { // reserve page 0 for the header
		io_.close()
		return nil, err
	}
	rootID, err := io_.grow()
	if err != nil {
		io_.close()
		return nil, err
	}
	p.header = FileHeader{
		Magic:    FileMagic,
		Version:  FileVersion,
		PageSize: uint32(pageSize),
		RootID:   rootID,
		FreeHead: NoFreePage,
	}
	root := NewPage(rootID, true, pageSize)
	p.cache[rootID] = root
	p.dirty[rootID] = true
	p.touchLRU(rootID)
	p.headerDirty = true

	if err := p.Flush(); err != nil {
		io_.close()
		return nil, err
	}
	return p, nil
}

// Open loads an existing file, validating its header.
func Open(path string, cacheCapacity int, log *zap.Logger) (*Pager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	io_, err := openFileIO(path)
	if err != nil {
		return nil, err
	}
	buf, err := io_.readPage(HeaderPageID)
	if err != nil {
		io_.close()
		return nil, err
	}
	header := decodeHeader(buf)
	if header.Magic != FileMagic || header.Version != FileVersion || int(header.PageSize) != io_.pageSize {
		io_.close()
		return nil, common.ErrBadFormat
	}
	p := newPager(io_, cacheCapacity, log)
	p.header = header
	return p, nil
}

func newPager(io_ *fileIO, cacheCapacity int, log *zap.Logger) *Pager {
	if cacheCapacity <= 0 {
		cacheCapacity = DefaultCacheCapacity
	}
	return &Pager{
		io:       io_,
		capacity: cacheCapacity,
		cache:    make(map[uint32]*Page),
		lru:      list.New(),
		lruPos:   make(map[uint32]*list.Element),
		pins:     make(map[uint32]int),
		dirty:    make(map[uint32]bool),
		log:      log,
	}
}

func (p *Pager) PageSize() int   { return p.io.pageSize }
func (p *Pager) RootID() uint32  { return p.header.RootID }
func (p *Pager) SetRootID(id uint32) {
	p.header.RootID = id
	p.headerDirty = true
}

// Get returns the page for id, pinned for the caller's use, loading it
// from disk on a cache miss.
func (p *Pager) Get(id uint32) (*Page, error) {
	if page, ok := p.cache[id]; ok {
		p.touchLRU(id)
		p.Pin(id)
		return page, nil
	}
	if err := p.evictIfNeeded(); err != nil {
		return nil, err
	}
	buf, err := p.io.readPage(id)
	if err != nil {
		p.log.Error("page read failed", zap.Uint32("page_id", id), zap.Error(err))
		return nil, err
	}
	page := LoadPage(buf)
	p.cache[id] = page
	p.touchLRU(id)
	p.Pin(id)
	return page, nil
}

// Peek returns a resident page without affecting its pin count or LRU
// position, for use when the caller already holds a pin on it (e.g. a
// page still on the descent path stack).
func (p *Pager) Peek(id uint32) (*Page, bool) {
	page, ok := p.cache[id]
	return page, ok
}

// Pin increments id's borrow count, preventing eviction until a matching
// Unpin. Descent pins every page along the path stack for the duration
// of the operation.
func (p *Pager) Pin(id uint32) {
	p.pins[id]++
}

// Unpin releases one borrow of id.
func (p *Pager) Unpin(id uint32) {
	if n := p.pins[id]; n > 0 {
		if n == 1 {
			delete(p.pins, id)
		} else {
			p.pins[id] = n - 1
		}
	}
}

// MarkDirty flags a resident page as modified; callers mutate Page
// in-place and then call this. Flush writes only the pages in the
// pager's dirty set, so a Page's own SetDirty flag alone is not enough.
func (p *Pager) MarkDirty(id uint32) {
	if page, ok := p.cache[id]; ok {
		page.SetDirty(true)
	}
	p.dirty[id] = true
}

func (p *Pager) touchLRU(id uint32) {
	if elem, ok := p.lruPos[id]; ok {
		p.lru.MoveToFront(elem)
		return
	}
	p.lruPos[id] = p.lru.PushFront(id)
}

// evictIfNeeded makes room for one more resident page by evicting the
// least-recently-used unpinned clean page, or, when every unpinned page
// is dirty, writing back and evicting the least-recently-used one.
func (p *Pager) evictIfNeeded() error {
	if len(p.cache) < p.capacity {
		return nil
	}
	var victim *list.Element
	for elem := p.lru.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(uint32)
		if p.pins[id] > 0 {
			continue
		}
		if !p.dirty[id] {
			victim = elem
			break
		}
		if victim == nil {
			victim = elem
		}
	}
	if victim == nil {
		// Every resident page is pinned (e.g. a very tall tree descent on a
		// tiny cache); the caller will simply run over capacity until pins
		// are released.
		return nil
	}
	id := victim.Value.(uint32)
	if err := p.writeBack(id); err != nil {
		return err
	}
	delete(p.cache, id)
	delete(p.lruPos, id)
	p.lru.Remove(victim)
	return nil
}

func (p *Pager) writeBack(id uint32) error {
	if !p.dirty[id] {
		return nil
	}
	page, ok := p.cache[id]
	if !ok {
		return nil
	}
	if err := p.io.writePage(id, page.Data()); err != nil {
		p.log.Error("page write-back failed", zap.Uint32("page_id", id), zap.Error(err))
		return err
	}
	page.SetDirty(false)
	delete(p.dirty, id)
	return nil
}

// Allocate returns a fresh page, popping the free list if non-empty or
// growing the file otherwise, zero-initialised and dirty.
func (p *Pager) Allocate(leaf bool) (*Page, error) {
	var id uint32
	if p.header.FreeHead != NoFreePage {
		id = p.header.FreeHead
		next, err := p.freeListNext(id)
		if err != nil {
			return nil, err
		}
		p.header.FreeHead = next
		p.headerDirty = true
	} else {
		var err error
		id, err = p.io.grow()
		if err != nil {
			return nil, err
		}
	}
	page := NewPage(id, leaf, p.io.pageSize)
	if err := p.evictIfNeeded(); err != nil {
		return nil, err
	}
	p.cache[id] = page
	p.touchLRU(id)
	p.dirty[id] = true
	return page, nil
}

// freeListNext reads the next-free pointer stashed in a freed page's
// first four bytes (the rest of a freed page's content is meaningless).
func (p *Pager) freeListNext(id uint32) (uint32, error) {
	if page, ok := p.cache[id]; ok {
		return decodeFreeNext(page.Data()), nil
	}
	buf, err := p.io.readPage(id)
	if err != nil {
		return 0, err
	}
	return decodeFreeNext(buf), nil
}

func decodeFreeNext(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

func encodeFreeNext(buf []byte, next uint32) {
	buf[0] = byte(next)
	buf[1] = byte(next >> 8)
	buf[2] = byte(next >> 16)
	buf[3] = byte(next >> 24)
}

// Free pushes id onto the free list. Its prior content is abandoned; the
// free-list link is stashed in its first four bytes.
func (p *Pager) Free(id uint32) error {
	page, ok := p.cache[id]
	if !ok {
		buf, err := p.io.readPage(id)
		if err != nil {
			return err
		}
		page = LoadPage(buf)
		p.cache[id] = page
		p.touchLRU(id)
	}
	encodeFreeNext(page.Data(), p.header.FreeHead)
	page.SetDirty(true)
	p.dirty[id] = true
	p.header.FreeHead = id
	p.headerDirty = true
	delete(p.pins, id)
	return nil
}

// Flush writes every dirty page in ascending id order, then the header
// if it changed, then data-syncs the file.
func (p *Pager) Flush() error {
	ids := make([]uint32, 0, len(p.dirty))
	for id := range p.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		page, ok := p.cache[id]
		if !ok {
			continue
		}
		if err := p.io.writePage(id, page.Data()); err != nil {
			p.log.Error("flush failed", zap.Uint32("page_id", id), zap.Error(err))
			return err
		}
		page.SetDirty(false)
		delete(p.dirty, id)
	}
	if p.headerDirty {
		if err := p.io.writePage(HeaderPageID, encodeHeader(p.header, p.io.pageSize)); err != nil {
			return err
		}
		p.headerDirty = false
	}
	if err := p.io.syncData(); err != nil {
		return err
	}
	p.log.Debug("flush complete", zap.Int("pages_written", len(ids)))
	return nil
}

// Close flushes and releases the underlying file.
func (p *Pager) Close() error {
	if err := p.Flush(); err != nil {
		return err
	}
	return p.io.close()
}
