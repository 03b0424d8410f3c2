package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T) *FS {
	t.Helper()
	store, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFSReadWriteStat(t *testing.T) {
	ctx := context.Background()
	store := newFS(t)

	require.NoError(t, store.Write(ctx, "docs/prd.md", []byte("# PRD\n")))

	data, err := store.Read(ctx, "docs/prd.md")
	require.NoError(t, err)
	assert.Equal(t, "# PRD\n", string(data))

	info, err := store.Stat(ctx, "/docs//prd.md")
	require.NoError(t, err)
	assert.Equal(t, "docs/prd.md", info.Path)
	assert.Equal(t, int64(6), info.Size)
	assert.False(t, info.IsDir)
}

func TestFSMissingContent(t *testing.T) {
	ctx := context.Background()
	store := newFS(t)

	_, err := store.Read(ctx, "nope.md")
	assert.ErrorIs(t, err, ErrNotExist)

	_, err = store.Stat(ctx, "nope.md")
	assert.ErrorIs(t, err, ErrNotExist)

	assert.ErrorIs(t, store.Delete(ctx, "nope.md"), ErrNotExist)
}

func TestFSRejectsPathsOutsideRoot(t *testing.T) {
	ctx := context.Background()
	store := newFS(t)

	_, err := store.Read(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	assert.ErrorIs(t, store.Move(ctx, "a.md", "x/../../b.md"), ErrOutsideRoot)
}

func TestFSMove(t *testing.T) {
	ctx := context.Background()
	store := newFS(t)
	require.NoError(t, store.Write(ctx, "prd.md", []byte("v1")))

	require.NoError(t, store.Move(ctx, "prd.md", "_archive/prd.md"))

	_, err := os.Stat(filepath.Join(store.Root(), "prd.md"))
	assert.True(t, os.IsNotExist(err))
	data, err := store.Read(ctx, "_archive/prd.md")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	t.Run("refuses to overwrite", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, "prd.md", []byte("v2")))
		assert.ErrorIs(t, store.Move(ctx, "prd.md", "_archive/prd.md"), ErrExist)
	})
}

func TestFSList(t *testing.T) {
	ctx := context.Background()
	store := newFS(t)
	require.NoError(t, store.Write(ctx, "b.md", []byte("b")))
	require.NoError(t, store.Write(ctx, "a.md", []byte("a")))
	require.NoError(t, store.Write(ctx, "sub/c.md", []byte("c")))

	infos, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "a.md", infos[0].Path)
	assert.Equal(t, "b.md", infos[1].Path)
	assert.Equal(t, "sub", infos[2].Path)
	assert.True(t, infos[2].IsDir)
}

func TestFSHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newFS(t)

	_, err := store.Read(ctx, "prd.md")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Write(ctx, "prd.md", nil), context.Canceled)
}

func TestHashIsStable(t *testing.T) {
	a := Hash([]byte("hello"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Hash([]byte("hello")))
	assert.NotEqual(t, a, Hash([]byte("hello!")))
}
