package offlinecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spdeepak/offlinecache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationUpgrade(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStorage(0)
	network := newFakeNetwork()
	registration := NewRegistration(network)

	var updatedTo []string
	registration.OnUpdate = func(active *Worker) { updatedTo = append(updatedTo, active.Version()) }

	v1 := newTestWorker(t, network, storage)
	require.NoError(t, registration.Register(ctx, v1))
	assert.Same(t, v1, registration.Active())
	assert.Empty(t, updatedTo)

	// v2 lists an asset the network cannot serve
	v2 := newTestWorker(t, network, storage, func(c *Config) {
		c.Version = "v2"
		c.Manifest = append(append([]string(nil), DefaultManifest...), "./missing.js")
	})
	err := registration.Register(ctx, v2)
	require.ErrorIs(t, err, ErrInstallFailed)
	assert.Same(t, v1, registration.Active(), "the previous version keeps serving")
	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, names)

	network.resetCalls()
	resp, _, err := get(t, registration, "http://app.test/index.html")
	require.NoError(t, err)
	assert.Equal(t, "HIT", resp.Header.Get(CacheStatusHeader))
	assert.Zero(t, network.callCount())

	v3 := newTestWorker(t, network, storage, func(c *Config) { c.Version = "v3" })
	require.NoError(t, registration.Register(ctx, v3))
	assert.Same(t, v3, registration.Active())
	assert.Equal(t, StateRedundant, v1.State())
	assert.Equal(t, []string{"v3"}, updatedTo)

	names, err = storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v3"}, names)
}

func TestRegistrationWithoutActiveWorker(t *testing.T) {
	network := newFakeNetwork()
	registration := NewRegistration(network)

	resp, body, err := get(t, registration, "http://app.test/style.css")
	require.NoError(t, err)
	assert.Equal(t, "body{}", body)
	assert.Empty(t, resp.Header.Get(CacheStatusHeader))

	rec := httptest.NewRecorder()
	registration.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegistrationServeHTTP(t *testing.T) {
	network := newFakeNetwork()
	registration := NewRegistration(network)
	require.NoError(t, registration.Register(context.Background(), newTestWorker(t, network, cache.NewMemoryStorage(0))))

	rec := httptest.NewRecorder()
	registration.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>root</html>", rec.Body.String())
}
