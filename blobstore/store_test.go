package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behavior every BlobStore must share.
func storeContract(t *testing.T, store BlobStore) {
	ctx := context.Background()

	t.Run("open missing", func(t *testing.T) {
		_, err := store.Open(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create and read back", func(t *testing.T) {
		w, err := store.Create(ctx, "dir/a")
		require.NoError(t, err)
		_, err = w.Write([]byte("hello "))
		require.NoError(t, err)
		_, err = w.Write([]byte("world"))
		require.NoError(t, err)
		require.NoError(t, w.Sync())
		require.NoError(t, w.Close())

		b, err := store.Open(ctx, "dir/a")
		require.NoError(t, err)
		defer b.Close()

		assert.Equal(t, int64(11), b.Size())

		buf := make([]byte, 5)
		n, err := b.ReadAt(ctx, buf, 6)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "world", string(buf))

		rc, err := b.ReadRange(ctx, 0, 5)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "hello", string(got))
	})

	t.Run("read past end", func(t *testing.T) {
		b, err := store.Open(ctx, "dir/a")
		require.NoError(t, err)
		defer b.Close()

		buf := make([]byte, 8)
		n, err := b.ReadAt(ctx, buf, 8)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 3, n)
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "dir/b", []byte("v1")))
		require.NoError(t, store.Put(ctx, "dir/b", []byte("v2")))

		b, err := store.Open(ctx, "dir/b")
		require.NoError(t, err)
		defer b.Close()

		buf := make([]byte, 2)
		_, err = b.ReadAt(ctx, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(buf))
	})

	t.Run("list by prefix", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "other/c", []byte("x")))

		names, err := store.List(ctx, "dir/")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"dir/a", "dir/b"}, names)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "dir/b"))
		_, err := store.Open(ctx, "dir/b")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting a missing blob is not an error.
		assert.NoError(t, store.Delete(ctx, "dir/b"))
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestLocalStore_Contract(t *testing.T) {
	storeContract(t, NewLocalStore(t.TempDir()))
}

func TestMemoryStore_PutCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", data))
	data[0] = 'z'

	b, err := store.Open(ctx, "k")
	require.NoError(t, err)
	defer b.Close()

	buf := make([]byte, 3)
	_, err = b.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf))
}

func TestLocalStore_CreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	w, err := store.Create(ctx, "blob")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	// Not visible until Close.
	_, err = store.Open(ctx, "blob")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, w.Close())
	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestBlob_MappableBytes(t *testing.T) {
	ctx := context.Background()
	for name, store := range map[string]BlobStore{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "k", []byte("mapped")))

			b, err := store.Open(ctx, "k")
			require.NoError(t, err)
			defer b.Close()

			m, ok := b.(Mappable)
			require.True(t, ok)
			raw, err := m.Bytes()
			require.NoError(t, err)
			assert.Equal(t, "mapped", string(raw))
		})
	}
}
