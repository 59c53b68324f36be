//go:build unix

package btree

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncFile data-syncs the file: page bytes plus the metadata needed to
// read them back, including the file size (open derives the page count
// from it), without forcing timestamps such as mtime to be flushed.
func syncFile(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
