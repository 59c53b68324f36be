// Package yakv is a single-file, durable, ordered key-value store backed
// by an on-disk B-tree: sorted iteration, point lookup, and predictable
// per-operation I/O for embedded use cases between a naive file and a
// full LSM engine.
package yakv

import (
	"sync"

	"yakv/btree"
	"yakv/common"
)

// DB is the public handle to an open database file. The core tree engine
// holds no internal locking of its own; DB supplies the single-writer,
// shared-reader discipline the spec requires: one RWMutex, exclusive for
// mutations, shared for lookups, never held across blocking I/O beyond
// the call it guards.
type DB struct {
	mu            sync.RWMutex
	tree          *btree.BTree
	flushOnMutate bool
	closed        bool
}

// Create initialises a brand-new database file at path.
func Create(path string, opts ...Option) (*DB, error) {
	cfg := applyOptions(DefaultConfig(), opts)
	tree, err := btree.CreateTree(path, toTreeConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &DB{tree: tree, flushOnMutate: cfg.FlushOnMutate}, nil
}

// Open loads an existing database file at path, validating its header.
func Open(path string, opts ...Option) (*DB, error) {
	cfg := applyOptions(DefaultConfig(), opts)
	tree, err := btree.OpenTree(path, toTreeConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &DB{tree: tree, flushOnMutate: cfg.FlushOnMutate}, nil
}

func toTreeConfig(cfg Config) btree.Config {
	return btree.Config{
		PageSize:       cfg.PageSize,
		CacheCapacity:  cfg.CacheCapacity,
		UnderflowRatio: cfg.UnderflowRatio,
		Logger:         cfg.Logger,
	}
}

// Lookup returns the value stored for key, if any.
func (db *DB) Lookup(key []byte) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, false, common.ErrClosed
	}
	return db.tree.Lookup(key)
}

// Insert adds or overwrites key's value. On success with FlushOnMutate
// enabled (the default), the mutation is durable before Insert returns.
func (db *DB) Insert(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return common.ErrClosed
	}
	if err := db.tree.Insert(key, value); err != nil {
		return err
	}
	return db.maybeFlush()
}

// Remove deletes key if present and reports whether it was present.
func (db *DB) Remove(key []byte) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return false, common.ErrClosed
	}
	removed, err := db.tree.Remove(key)
	if err != nil {
		return removed, err
	}
	if err := db.maybeFlush(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Min returns the smallest key/value in the database.
func (db *DB) Min() ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, nil, false, common.ErrClosed
	}
	return db.tree.Min()
}

// Max returns the largest key/value in the database.
func (db *DB) Max() ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, nil, false, common.ErrClosed
	}
	return db.tree.Max()
}

// Above returns the strict successor of key, if any.
func (db *DB) Above(key []byte) ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, nil, false, common.ErrClosed
	}
	return db.tree.Above(key)
}

// Below returns the strict predecessor of key, if any.
func (db *DB) Below(key []byte) ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, nil, false, common.ErrClosed
	}
	return db.tree.Below(key)
}

// NewCursor returns a sequential-iteration cursor over the database.
func (db *DB) NewCursor() *btree.Cursor {
	return db.tree.NewCursor()
}

// Flush writes every dirty page and the header to disk.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return common.ErrClosed
	}
	return db.tree.Flush()
}

func (db *DB) maybeFlush() error {
	if !db.flushOnMutate {
		return nil
	}
	return db.tree.Flush()
}

// Close flushes and releases the underlying file. Close is idempotent.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	return db.tree.Close()
}

// Stats reports basic resource usage.
func (db *DB) Stats() common.Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Stats()
}
