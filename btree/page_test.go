package btree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPagePutFindGet(t *testing.T) {
	p := NewPage(1, true, DefaultPageSize)

	require.NoError(t, p.Put([]byte("b"), []byte("2")))
	require.NoError(t, p.Put([]byte("a"), []byte("1")))
	require.NoError(t, p.Put([]byte("c"), []byte("3")))
	require.Equal(t, 3, p.Count())

	index, found := p.Find([]byte("b"))
	require.True(t, found)
	require.Equal(t, "2", string(p.Get(index).Value))

	_, found = p.Find([]byte("z"))
	require.False(t, found)
}

func TestPagePutOverwriteShrinkAndGrow(t *testing.T) {
	p := NewPage(1, true, DefaultPageSize)
	require.NoError(t, p.Put([]byte("k"), []byte("short")))

	require.NoError(t, p.Put([]byte("k"), []byte("x")))
	index, found := p.Find([]byte("k"))
	require.True(t, found)
	require.Equal(t, "x", string(p.Get(index).Value))

	require.NoError(t, p.Put([]byte("k"), []byte("a much longer replacement value")))
	index, found = p.Find([]byte("k"))
	require.True(t, found)
	require.Equal(t, "a much longer replacement value", string(p.Get(index).Value))
	require.Equal(t, 1, p.Count())
}

func TestPageDeleteThenReinsertReclaimsSpace(t *testing.T) {
	p := NewPage(1, true, 256)
	val := make([]byte, 70)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Put([]byte(fmt.Sprintf("k%d", i)), val))
	}
	index, found := p.Find([]byte("k1"))
	require.True(t, found)
	require.NoError(t, p.Delete(index))
	require.Equal(t, 2, p.Count())

	// Without compaction the freed bytes are fragmented above freePtr;
	// Put must recover them via tryCompact.
	require.NoError(t, p.Put([]byte("k3"), val))
	require.Equal(t, 3, p.Count())
}

func TestPageMinMaxOnEmptyPage(t *testing.T) {
	p := NewPage(1, true, DefaultPageSize)
	_, ok := p.Min()
	require.False(t, ok)
	_, ok = p.Max()
	require.False(t, ok)
}

func TestPagePutFullReturnsErrPageFull(t *testing.T) {
	p := NewPage(1, true, HeaderSize+SlotSize+4)
	require.NoError(t, p.Put([]byte("k"), []byte("v")))
	err := p.Put([]byte("k2"), []byte("v2"))
	require.ErrorIs(t, err, ErrPageFull)
}

func TestChildIndexForFallsBackToLeftmost(t *testing.T) {
	p := NewPage(1, false, DefaultPageSize)
	require.NoError(t, p.Put([]byte("m"), EncodeChildID(10)))
	require.NoError(t, p.Put([]byte("z"), EncodeChildID(20)))

	require.Equal(t, 0, childIndexFor(p, []byte("a")))
	require.Equal(t, 0, childIndexFor(p, []byte("m")))
	require.Equal(t, 0, childIndexFor(p, []byte("n")))
	require.Equal(t, 1, childIndexFor(p, []byte("zzz")))
}

func TestPageSplitPointBalancesOccupancy(t *testing.T) {
	p := NewPage(1, true, 512)
	val := make([]byte, 20)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Put([]byte(fmt.Sprintf("k%02d", i)), val))
	}
	mid := p.SplitPoint()
	require.Greater(t, mid, 0)
	require.Less(t, mid, p.Count())
}
