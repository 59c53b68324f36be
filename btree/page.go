package btree

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// NoParent marks the root page, which has no parent.
	NoParent = 0xFFFFFFFF

	// FlagLeaf is bit 0 of the flags field.
	FlagLeaf uint16 = 1 << 0

	// HeaderSize is the fixed page header: page_id(4) parent_id(4) flags(2) count(2).
	HeaderSize = 12

	// SlotSize is the size of one slot directory entry: offset(2) key_len(2) val_len(2).
	SlotSize = 6

	headerOffsetPageID   = 0
	headerOffsetParentID = 4
	headerOffsetFlags    = 8
	headerOffsetCount    = 10

	// ChildIDSize is the width of an internal page's value field: the
	// child page id, little-endian.
	ChildIDSize = 4
)

var ErrPageFull = errors.New("btree: page full")

// Entry is a borrowed view of one slot's payload. For internal pages
// Value holds the 4-byte little-endian child page id.
type Entry struct {
	Key   []byte
	Value []byte
}

// Page is one fixed-size node of the tree, backed by a byte slice sized
// to the database's configured page size. Layout, little-endian:
//
//	[page_id u32][parent_id u32][flags u16][count u16]
//	[slot 0: offset u16, key_len u16, val_len u16] ... [slot count-1]
//	<free gap>
//	... payloads growing downward from the end of the page ...
type Page struct {
	data  []byte
	dirty bool
}

// NewPage zero-initialises a fresh page of the given size as a leaf or
// internal node with no entries.
func NewPage(id uint32, leaf bool, pageSize int) *Page {
	p := &Page{data: make([]byte, pageSize), dirty: true}
	binary.LittleEndian.PutUint32(p.data[headerOffsetPageID:], id)
	binary.LittleEndian.PutUint32(p.data[headerOffsetParentID:], NoParent)
	var flags uint16
	if leaf {
		flags = FlagLeaf
	}
	binary.LittleEndian.PutUint16(p.data[headerOffsetFlags:], flags)
	binary.LittleEndian.PutUint16(p.data[headerOffsetCount:], 0)
	return p
}

// LoadPage wraps an on-disk page buffer. The slice is taken by reference,
// not copied.
func LoadPage(data []byte) *Page {
	return &Page{data: data, dirty: false}
}

func (p *Page) ID() uint32 {
	return binary.LittleEndian.Uint32(p.data[headerOffsetPageID:])
}

func (p *Page) ParentID() uint32 {
	return binary.LittleEndian.Uint32(p.data[headerOffsetParentID:])
}

func (p *Page) SetParentID(id uint32) {
	binary.LittleEndian.PutUint32(p.data[headerOffsetParentID:], id)
	p.dirty = true
}

func (p *Page) IsLeaf() bool {
	flags := binary.LittleEndian.Uint16(p.data[headerOffsetFlags:])
	return flags&FlagLeaf != 0
}

func (p *Page) Count() int {
	return int(binary.LittleEndian.Uint16(p.data[headerOffsetCount:]))
}

func (p *Page) setCount(n int) {
	binary.LittleEndian.PutUint16(p.data[headerOffsetCount:], uint16(n))
}

func (p *Page) IsDirty() bool { return p.dirty }

func (p *Page) SetDirty(d bool) { p.dirty = d }

func (p *Page) Data() []byte { return p.data }

func (p *Page) pageSize() int { return len(p.data) }

func (p *Page) slotOffset(i int) int { return HeaderSize + i*SlotSize }

func (p *Page) slot(i int) (offset, keyLen, valLen int) {
	so := p.slotOffset(i)
	offset = int(binary.LittleEndian.Uint16(p.data[so:]))
	keyLen = int(binary.LittleEndian.Uint16(p.data[so+2:]))
	valLen = int(binary.LittleEndian.Uint16(p.data[so+4:]))
	return
}

func (p *Page) setSlot(i, offset, keyLen, valLen int) {
	so := p.slotOffset(i)
	binary.LittleEndian.PutUint16(p.data[so:], uint16(offset))
	binary.LittleEndian.PutUint16(p.data[so+2:], uint16(keyLen))
	binary.LittleEndian.PutUint16(p.data[so+4:], uint16(valLen))
}

// freePtr returns the lowest offset currently used by a payload; the gap
// between the slot directory's end and freePtr is free space.
func (p *Page) freePtr() int {
	n := p.Count()
	if n == 0 {
		return p.pageSize()
	}
	min := p.pageSize()
	for i := 0; i < n; i++ {
		off, _, _ := p.slot(i)
		if off < min {
			min = off
		}
	}
	return min
}

func (p *Page) dirEnd() int { return p.slotOffset(p.Count()) }

// freeBytes is the size of the unused gap between the slot directory and
// the lowest live payload.
func (p *Page) freeBytes() int {
	return p.freePtr() - p.dirEnd()
}

// liveBytes is the total size of every live payload, excluding slot
// directory overhead.
func (p *Page) liveBytes() int {
	total := 0
	n := p.Count()
	for i := 0; i < n; i++ {
		_, kl, vl := p.slot(i)
		total += kl + vl
	}
	return total
}

// OccupiedBytes is the byte occupancy used for split/underflow balancing:
// every live payload plus its slot directory overhead.
func (p *Page) OccupiedBytes() int {
	return p.liveBytes() + p.Count()*SlotSize
}

// Capacity is the page's usable byte budget beyond the fixed header.
func (p *Page) Capacity() int {
	return p.pageSize() - HeaderSize
}

func (p *Page) keyAt(i int) []byte {
	off, kl, _ := p.slot(i)
	return p.data[off : off+kl]
}

func (p *Page) valueAt(i int) []byte {
	off, kl, vl := p.slot(i)
	return p.data[off+kl : off+kl+vl]
}

// Find performs a binary search over the slot directory, returning the
// index of an exact match (found=true) or the insertion index that
// preserves ascending order (found=false).
func (p *Page) Find(key []byte) (index int, found bool) {
	lo, hi := 0, p.Count()
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := bytes.Compare(key, p.keyAt(mid))
		switch {
		case cmp == 0:
			return mid, true
		case cmp < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false
}

// Get returns a borrowed view of the entry at index.
func (p *Page) Get(index int) Entry {
	return Entry{Key: p.keyAt(index), Value: p.valueAt(index)}
}

// ChildAt decodes the child page id carried by an internal entry's value.
func (p *Page) ChildAt(index int) uint32 {
	return binary.LittleEndian.Uint32(p.valueAt(index))
}

// EncodeChildID packs a child page id into a 4-byte value slice suitable
// for an internal entry.
func EncodeChildID(id uint32) []byte {
	b := make([]byte, ChildIDSize)
	binary.LittleEndian.PutUint32(b, id)
	return b
}

func (p *Page) entrySize(keyLen, valLen int) int {
	return SlotSize + keyLen + valLen
}

// fits reports whether a new or updated entry of the given sizes fits in
// the current free gap, accounting for whether it overwrites an existing
// slot (no new directory entry needed) or not.
func (p *Page) fits(keyLen, valLen int, overwrite bool) bool {
	need := keyLen + valLen
	if !overwrite {
		need += SlotSize
	}
	return p.freeBytes() >= need
}

// Put inserts key/value in sorted position, or overwrites the value of an
// existing matching key. Returns ErrPageFull if there is no room, even
// after an internal compaction attempt.
func (p *Page) Put(key, value []byte) error {
	index, found := p.Find(key)
	if found {
		_, oldKeyLen, oldValLen := p.slot(index)
		if len(value) <= oldValLen {
			// Shrinking or same-size overwrite: write in place, no
			// directory churn.
			off, kl, _ := p.slot(index)
			copy(p.data[off+kl:off+kl+len(value)], value)
			p.setSlot(index, off, oldKeyLen, len(value))
			p.dirty = true
			return nil
		}
		if !p.fits(len(key), len(value), true) {
			if !p.tryCompact(len(key), len(value), true) {
				return ErrPageFull
			}
			index, _ = p.Find(key)
		}
		p.removeSlotKeepDirectory(index)
		p.writePayloadAndInsertSlot(index, key, value)
		p.dirty = true
		return nil
	}

	if !p.fits(len(key), len(value), false) {
		if !p.tryCompact(len(key), len(value), false) {
			return ErrPageFull
		}
		index, _ = p.Find(key)
	}
	p.writePayloadAndInsertSlot(index, key, value)
	p.dirty = true
	return nil
}

// removeSlotKeepDirectory removes a directory entry (shifting later
// entries left) without touching payload bytes, used when an overwrite
// needs to relocate its payload.
func (p *Page) removeSlotKeepDirectory(index int) {
	n := p.Count()
	for i := index; i < n-1; i++ {
		off, kl, vl := p.slot(i + 1)
		p.setSlot(i, off, kl, vl)
	}
	p.setCount(n - 1)
}

// writePayloadAndInsertSlot computes the new payload's offset from the
// page's current live slots (before any directory shift touches this
// index), writes key‖value there, then opens a directory slot at index
// and fills it in a single pass so no slot is ever read half-written.
func (p *Page) writePayloadAndInsertSlot(index int, key, value []byte) {
	newOff := p.freePtr() - len(key) - len(value)
	copy(p.data[newOff:], key)
	copy(p.data[newOff+len(key):], value)

	n := p.Count()
	for i := n; i > index; i-- {
		off, kl, vl := p.slot(i - 1)
		p.setSlot(i, off, kl, vl)
	}
	p.setSlot(index, newOff, len(key), len(value))
	p.setCount(n + 1)
}

// tryCompact reclaims space left behind by deletes/overwrites-in-place by
// rewriting every live payload contiguously from the page end, then
// reports whether the requested entry would now fit.
func (p *Page) tryCompact(keyLen, valLen int, overwrite bool) bool {
	p.Compact()
	return p.fits(keyLen, valLen, overwrite)
}

// Compact rewrites every live payload contiguously against the page end
// in directory order, eliminating any fragmentation left by prior
// deletes or in-place shrinks.
func (p *Page) Compact() {
	n := p.Count()
	if n == 0 {
		return
	}
	type live struct {
		key, val []byte
	}
	entries := make([]live, n)
	for i := 0; i < n; i++ {
		off, kl, vl := p.slot(i)
		key := make([]byte, kl)
		val := make([]byte, vl)
		copy(key, p.data[off:off+kl])
		copy(val, p.data[off+kl:off+kl+vl])
		entries[i] = live{key, val}
	}
	cursor := p.pageSize()
	for i, e := range entries {
		cursor -= len(e.key) + len(e.val)
		copy(p.data[cursor:], e.key)
		copy(p.data[cursor+len(e.key):], e.val)
		p.setSlot(i, cursor, len(e.key), len(e.val))
	}
}

// Delete removes the slot at index. Payload bytes are left in place;
// only the directory shrinks, so space is reclaimed lazily by Compact.
func (p *Page) Delete(index int) error {
	n := p.Count()
	if index < 0 || index >= n {
		return errors.New("btree: slot index out of range")
	}
	for i := index; i < n-1; i++ {
		off, kl, vl := p.slot(i + 1)
		p.setSlot(i, off, kl, vl)
	}
	p.setCount(n - 1)
	p.dirty = true
	return nil
}

// Min returns the first entry, if any.
func (p *Page) Min() (Entry, bool) {
	if p.Count() == 0 {
		return Entry{}, false
	}
	return p.Get(0), true
}

// Max returns the last entry, if any.
func (p *Page) Max() (Entry, bool) {
	n := p.Count()
	if n == 0 {
		return Entry{}, false
	}
	return p.Get(n - 1), true
}

// SplitPoint returns the smallest index such that splitting the page into
// [0,index) and [index,count) leaves the right half with byte occupancy
// no greater than the left half — i.e. the left half gets the tie when
// occupancy is exactly balanced, per the split-midpoint tie-break.
func (p *Page) SplitPoint() int {
	n := p.Count()
	total := p.liveBytes() + n*SlotSize
	target := (total + 1) / 2
	acc := 0
	for i := 0; i < n; i++ {
		_, kl, vl := p.slot(i)
		acc += kl + vl + SlotSize
		if acc >= target {
			return i + 1
		}
	}
	if n == 0 {
		return 0
	}
	return n - 1
}

// CloneEntries returns copies of every live entry, in order.
func (p *Page) CloneEntries() []Entry {
	n := p.Count()
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		e := p.Get(i)
		key := make([]byte, len(e.Key))
		val := make([]byte, len(e.Value))
		copy(key, e.Key)
		copy(val, e.Value)
		out[i] = Entry{Key: key, Value: val}
	}
	return out
}

// Reset clears the page back to zero entries, keeping id/parent/leaf-ness.
func (p *Page) Reset() {
	p.setCount(0)
	p.dirty = true
}

// PutAll appends entries in order to an empty page. Used when rebuilding
// a page's contents after a split, merge, or redistribution. Returns
// ErrPageFull if they do not all fit — callers are expected to have sized
// batches to fit.
func (p *Page) PutAll(entries []Entry) error {
	for _, e := range entries {
		if err := p.Put(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}
