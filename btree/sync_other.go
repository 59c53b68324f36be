//go:build !unix

package btree

import "os"

// syncFile falls back to a full fsync on platforms without a distinct
// data-sync syscall.
func syncFile(f *os.File) error {
	return f.Sync()
}
