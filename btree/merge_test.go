package btree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRemoveMidRangeKeysKeepsInvariants builds a small multi-leaf tree,
// removes a run of keys from its middle so leaves there underflow, and
// checks that rebalancing leaves every invariant intact and every
// surviving key readable.
func TestRemoveMidRangeKeysKeepsInvariants(t *testing.T) {
	tree := newTestTree(t, 256)
	val := make([]byte, 30)
	var keys []string
	for i := 0; i < 30; i++ {
		k := fmt.Sprintf("k%03d", i)
		require.NoError(t, tree.Insert([]byte(k), val))
		keys = append(keys, k)
	}
	requireVerified(t, tree)

	// Remove most of one leaf's worth of entries to force it underfull,
	// then verify structural invariants (including V3, the occupancy
	// floor) still hold after rebalancing resolves it.
	for i := 10; i < 18; i++ {
		removed, err := tree.Remove([]byte(keys[i]))
		require.NoError(t, err)
		require.True(t, removed)
	}
	requireVerified(t, tree)

	for i, k := range keys {
		if i >= 10 && i < 18 {
			continue
		}
		v, ok, err := tree.Lookup([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, val, v)
	}
}

func TestMergeCollapsesRootToSingleLevel(t *testing.T) {
	tree := newTestTree(t, 256)
	val := make([]byte, 40)
	var keys []string
	for i := 0; i < 40; i++ {
		k := fmt.Sprintf("m%03d", i)
		require.NoError(t, tree.Insert([]byte(k), val))
		keys = append(keys, k)
	}
	requireVerified(t, tree)

	for i := 0; i < 35; i++ {
		removed, err := tree.Remove([]byte(keys[i]))
		require.NoError(t, err)
		require.True(t, removed)
	}
	requireVerified(t, tree)

	for i := 35; i < 40; i++ {
		v, ok, err := tree.Lookup([]byte(keys[i]))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, val, v)
	}
}

func TestMergeMaintainsMinKeyPropagationAfterLeftmostRemoval(t *testing.T) {
	tree := newTestTree(t, 256)
	val := make([]byte, 30)
	var keys []string
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("z%03d", i)
		require.NoError(t, tree.Insert([]byte(k), val))
		keys = append(keys, k)
	}
	requireVerified(t, tree)

	for i := 0; i < 20; i++ {
		removed, err := tree.Remove([]byte(keys[i]))
		require.NoError(t, err)
		require.True(t, removed)
		requireVerified(t, tree)
	}

	minKey, _, ok, err := tree.Min()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, keys[20], string(minKey))
}
