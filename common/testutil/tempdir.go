package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempDir creates a temporary directory for testing.
func TempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "yakv-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// TempFile returns a path to a not-yet-existing file inside a fresh
// temporary directory, suitable for CreateTree/Create.
func TempFile(t *testing.T) string {
	return filepath.Join(TempDir(t), "store.yakv")
}
