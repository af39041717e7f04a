package cache

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotResponseIsIndependent(t *testing.T) {
	header := http.Header{"Content-Type": []string{"text/css"}}
	snapshot := NewSnapshot(http.StatusOK, header, []byte("body{}"))
	header.Set("Content-Type", "mutated")

	first := snapshot.Response(nil)
	second := snapshot.Response(nil)
	first.Header.Set("X-Extra", "1")

	buf := make([]byte, 3)
	_, err := first.Body.Read(buf)
	require.NoError(t, err)

	assert.Equal(t, "text/css", snapshot.Headers.Get("Content-Type"))
	assert.Empty(t, second.Header.Get("X-Extra"))
	assert.Equal(t, "6", second.Header.Get("Content-Length"))
	rest := make([]byte, 6)
	n, _ := second.Body.Read(rest)
	assert.Equal(t, "body{}", string(rest[:n]))
}

func TestSnapshotVerify(t *testing.T) {
	snapshot := NewSnapshot(http.StatusOK, nil, []byte("hello"))
	require.NoError(t, snapshot.Verify())

	snapshot.Body = []byte("tampered")
	assert.ErrorIs(t, snapshot.Verify(), ErrDigestMismatch)

	snapshot.Digest = ""
	assert.NoError(t, snapshot.Verify())
}

func TestInMemoryQuotaLRU(t *testing.T) {
	ctx := context.Background()
	lru := NewInMemoryQuotaLRU(0)

	require.NoError(t, lru.Put(ctx, "a", NewSnapshot(200, nil, []byte("a"))))
	require.NoError(t, lru.Put(ctx, "b", NewSnapshot(200, nil, []byte("b"))))
	require.NoError(t, lru.Put(ctx, "a", NewSnapshot(200, nil, []byte("a2"))))

	got, ok, err := lru.Match(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a2", string(got.Body))

	keys, err := lru.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keys)
	assert.Equal(t, int64(3), lru.Bytes())

	deleted, err := lru.Delete(ctx, "b")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, ok, err = lru.Match(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryQuotaLRUEvicts(t *testing.T) {
	ctx := context.Background()
	lru := NewInMemoryQuotaLRU(1)
	big := make([]byte, 700*1024)

	require.NoError(t, lru.Put(ctx, "first", NewSnapshot(200, nil, big)))
	require.NoError(t, lru.Put(ctx, "second", NewSnapshot(200, nil, big)))

	keys, err := lru.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, keys)
}

func TestMemoryStorageGenerations(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(0)

	v1, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, v1.Put(ctx, "GET https://app.test/", NewSnapshot(200, nil, []byte("root"))))
	_, err = storage.Open(ctx, "v2")
	require.NoError(t, err)

	again, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	_, ok, err := again.Match(ctx, "GET https://app.test/")
	require.NoError(t, err)
	assert.True(t, ok, "reopening must return the same generation")

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names)

	deleted, err := storage.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, deleted)
	has, err := storage.Has(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, has)

	deleted, err = storage.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}
