package yakv

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"yakv/common"
	"yakv/common/testutil"
)

func TestCreateInsertLookupReopen(t *testing.T) {
	path := testutil.TempFile(t)

	db, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, db.Insert([]byte("hello"), []byte("world")))
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Lookup([]byte("hello"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "world", string(v))
}

func TestOverwriteAndRemove(t *testing.T) {
	db, err := Create(testutil.TempFile(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Insert([]byte("k"), []byte("v1")))
	require.NoError(t, db.Insert([]byte("k"), []byte("v2")))
	v, ok, err := db.Lookup([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(v))

	removed, err := db.Remove([]byte("k"))
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err = db.Lookup([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	db, err := Create(testutil.TempFile(t))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, _, err = db.Lookup([]byte("k"))
	require.ErrorIs(t, err, common.ErrClosed)

	err = db.Insert([]byte("k"), []byte("v"))
	require.ErrorIs(t, err, common.ErrClosed)

	require.NoError(t, db.Close(), "Close must be idempotent")
}

func TestMinMaxAboveBelowOrdering(t *testing.T) {
	db, err := Create(testutil.TempFile(t))
	require.NoError(t, err)
	defer db.Close()

	for _, k := range []string{"banana", "apple", "cherry"} {
		require.NoError(t, db.Insert([]byte(k), []byte(k)))
	}

	k, _, ok, err := db.Min()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "apple", string(k))

	k, _, ok, err = db.Max()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cherry", string(k))

	k, _, ok, err = db.Above([]byte("apple"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "banana", string(k))

	k, _, ok, err = db.Below([]byte("cherry"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "banana", string(k))
}

func TestFlushOnMutateDisabledStillFlushesExplicitly(t *testing.T) {
	path := testutil.TempFile(t)
	db, err := Create(path, WithFlushOnMutate(false))
	require.NoError(t, err)

	require.NoError(t, db.Insert([]byte("k"), []byte("v")))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Close())

	reopened, err := Open(path, WithFlushOnMutate(false))
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Lookup([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))
}

func TestCursorOverFacade(t *testing.T) {
	db, err := Create(testutil.TempFile(t))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, db.Insert([]byte(fmt.Sprintf("k%02d", i)), []byte("v")))
	}

	c := db.NewCursor()
	require.True(t, c.SeekFirst())
	count := 1
	for c.Next() {
		count++
	}
	require.Equal(t, 10, count)
}

func TestStatsTracksKeyCount(t *testing.T) {
	db, err := Create(testutil.TempFile(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Insert([]byte("a"), []byte("1")))
	require.NoError(t, db.Insert([]byte("b"), []byte("2")))
	stats := db.Stats()
	require.Equal(t, int64(2), stats.NumKeys)

	_, err = db.Remove([]byte("a"))
	require.NoError(t, err)
	stats = db.Stats()
	require.Equal(t, int64(1), stats.NumKeys)
}
