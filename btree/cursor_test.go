package btree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorForwardScan(t *testing.T) {
	tree := newTestTree(t, 0)
	for _, k := range []string{"c", "a", "e", "b", "d"} {
		require.NoError(t, tree.Insert([]byte(k), []byte(k)))
	}

	c := tree.NewCursor()
	require.True(t, c.SeekFirst())

	var got []string
	for {
		got = append(got, string(c.Key()))
		if !c.Next() {
			break
		}
	}
	require.NoError(t, c.Error())
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestCursorReverseScan(t *testing.T) {
	tree := newTestTree(t, 0)
	for _, k := range []string{"c", "a", "e", "b", "d"} {
		require.NoError(t, tree.Insert([]byte(k), []byte(k)))
	}

	c := tree.NewCursor()
	require.True(t, c.SeekLast())

	var got []string
	for {
		got = append(got, string(c.Key()))
		if !c.Next() {
			break
		}
	}
	require.Equal(t, []string{"e", "d", "c", "b", "a"}, got)
}

func TestCursorSeekLandsOnSuccessor(t *testing.T) {
	tree := newTestTree(t, 0)
	for _, k := range []string{"a", "c", "e"} {
		require.NoError(t, tree.Insert([]byte(k), []byte(k)))
	}

	c := tree.NewCursor()
	require.True(t, c.Seek([]byte("b")))
	require.Equal(t, "c", string(c.Key()))

	c2 := tree.NewCursor()
	require.True(t, c2.Seek([]byte("c")))
	require.Equal(t, "c", string(c2.Key()))
}

func TestCursorOnEmptyTree(t *testing.T) {
	tree := newTestTree(t, 0)
	c := tree.NewCursor()
	require.False(t, c.SeekFirst())
	require.False(t, c.SeekLast())
}

func TestCursorAfterClose(t *testing.T) {
	tree := newTestTree(t, 0)
	require.NoError(t, tree.Insert([]byte("k"), []byte("v")))

	c := tree.NewCursor()
	require.True(t, c.SeekFirst())
	require.NoError(t, c.Close())
	require.False(t, c.Next())
}

func TestCursorOverManyKeys(t *testing.T) {
	tree := newTestTree(t, 256)
	val := make([]byte, 20)
	n := 100
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Insert([]byte(fmt.Sprintf("k%04d", i)), val))
	}

	c := tree.NewCursor()
	require.True(t, c.SeekFirst())
	count := 1
	for c.Next() {
		count++
	}
	require.Equal(t, n, count)
}
