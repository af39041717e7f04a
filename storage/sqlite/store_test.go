package sqlite

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/spdeepak/offlinecache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "offline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestGenerationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	gen, err := store.Open(ctx, "task-manager-v1")
	require.NoError(t, err)

	header := http.Header{"Content-Type": []string{"text/html"}}
	snapshot := cache.NewSnapshot(http.StatusOK, header, []byte("<html>tasks</html>"))
	require.NoError(t, gen.Put(ctx, "GET http://app.test/", snapshot))
	require.NoError(t, gen.Put(ctx, "GET http://app.test/style.css", cache.NewSnapshot(http.StatusOK, nil, []byte("body{}"))))

	got, ok, err := gen.Match(ctx, "GET http://app.test/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "text/html", got.Headers.Get("Content-Type"))
	assert.Equal(t, "<html>tasks</html>", string(got.Body))
	assert.Equal(t, snapshot.Digest, got.Digest)

	keys, err := gen.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET http://app.test/", "GET http://app.test/style.css"}, keys)

	_, ok, err = gen.Match(ctx, "GET http://app.test/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerationPutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	gen, err := store.Open(ctx, "v1")
	require.NoError(t, err)

	require.NoError(t, gen.Put(ctx, "k", cache.NewSnapshot(http.StatusOK, nil, []byte("old"))))
	require.NoError(t, gen.Put(ctx, "k", cache.NewSnapshot(http.StatusOK, nil, []byte("new"))))

	got, ok, err := gen.Match(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", string(got.Body))

	keys, err := gen.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestMatchDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	gen, err := store.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, gen.Put(ctx, "k", cache.NewSnapshot(http.StatusOK, nil, []byte("original"))))

	_, err = store.sqlDB.ExecContext(ctx, `UPDATE cache_entries SET body = ?`, encoder.EncodeAll([]byte("changed"), nil))
	require.NoError(t, err)

	_, ok, err := gen.Match(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrDigestMismatch)
	assert.False(t, ok)
}

func TestDeleteGenerationDropsEntries(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	old, err := store.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, old.Put(ctx, "k", cache.NewSnapshot(http.StatusOK, nil, []byte("x"))))
	_, err = store.Open(ctx, "v2")
	require.NoError(t, err)

	names, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names)

	deleted, err := store.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, deleted)

	has, err := store.Has(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, has)

	var count int
	require.NoError(t, store.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count))
	assert.Zero(t, count)

	deleted, err = store.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSlots(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, ok, err := store.Get(ctx, "install-dismissed")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "install-dismissed", []byte("true")))
	value, ok, err := store.Get(ctx, "install-dismissed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", string(value))
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offline.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "pwa-tasks", []byte("[]")))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	value, ok, err := store.Get(ctx, "pwa-tasks")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(value))
}
