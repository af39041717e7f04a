package offlinecache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/spdeepak/offlinecache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope = "http://app.test/"

var errOffline = errors.New("dial tcp: network is unreachable")

type route struct {
	status int
	body   string
	header http.Header
}

// fakeNetwork answers from a fixed route table and counts every call.
type fakeNetwork struct {
	mu      sync.Mutex
	calls   int
	offline bool
	routes  map[string]route
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{routes: map[string]route{
		"http://app.test/":              {status: http.StatusOK, body: "<html>root</html>"},
		"http://app.test/index.html":    {status: http.StatusOK, body: "<html>index</html>"},
		"http://app.test/style.css":     {status: http.StatusOK, body: "body{}"},
		"http://app.test/script.js":     {status: http.StatusOK, body: "console.log(1)"},
		"http://app.test/manifest.json": {status: http.StatusOK, body: `{"name":"Task Manager"}`},
	}}
}

func (n *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.offline {
		return nil, errOffline
	}
	r, ok := n.routes[req.URL.String()]
	if !ok {
		r = route{status: http.StatusNotFound, body: "not found"}
	}
	header := r.header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:     http.StatusText(r.status),
		StatusCode: r.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

func (n *fakeNetwork) set(url string, r route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[url] = r
}

func (n *fakeNetwork) setOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

func (n *fakeNetwork) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *fakeNetwork) resetCalls() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = 0
}

func newTestWorker(t *testing.T, network http.RoundTripper, storage cache.Storage, mutate ...func(*Config)) *Worker {
	t.Helper()
	cfg := &Config{Version: "v1", Scope: testScope, Network: network}
	for _, m := range mutate {
		m(cfg)
	}
	w, err := New(cfg, storage)
	require.NoError(t, err)
	return w
}

func activeWorker(t *testing.T, network *fakeNetwork, storage cache.Storage) *Worker {
	t.Helper()
	w := newTestWorker(t, network, storage)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))
	network.resetCalls()
	return w
}

func generationKeys(t *testing.T, storage cache.Storage, name string) []string {
	t.Helper()
	generation, err := storage.Open(context.Background(), name)
	require.NoError(t, err)
	keys, err := generation.Keys(context.Background())
	require.NoError(t, err)
	return keys
}

func TestNewValidatesScope(t *testing.T) {
	storage := cache.NewMemoryStorage(0)

	_, err := New(&Config{Scope: "/relative"}, storage)
	assert.Error(t, err)

	_, err = New(&Config{Scope: testScope}, nil)
	assert.Error(t, err)

	w, err := New(&Config{Scope: testScope}, storage)
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, w.Version())
	assert.Equal(t, StateParsed, w.State())
}

func TestInstallCachesEveryManifestEntry(t *testing.T) {
	network := newFakeNetwork()
	storage := cache.NewMemoryStorage(0)
	w := newTestWorker(t, network, storage)

	require.NoError(t, w.Install(context.Background()))

	assert.Equal(t, StateInstalled, w.State())
	assert.True(t, w.SkipWaiting())
	assert.Equal(t, len(DefaultManifest), network.callCount())
	assert.ElementsMatch(t, []string{
		"GET http://app.test/",
		"GET http://app.test/index.html",
		"GET http://app.test/style.css",
		"GET http://app.test/script.js",
		"GET http://app.test/manifest.json",
	}, generationKeys(t, storage, "v1"))
}

func TestInstallFailureExposesNothing(t *testing.T) {
	cases := []struct {
		name    string
		breakIt func(*fakeNetwork)
		cause   error
	}{
		{
			name:    "missing asset",
			breakIt: func(n *fakeNetwork) { n.set("http://app.test/style.css", route{status: http.StatusNotFound}) },
			cause:   ErrBadStatus,
		},
		{
			name:    "offline",
			breakIt: func(n *fakeNetwork) { n.setOffline(true) },
			cause:   errOffline,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			network := newFakeNetwork()
			tc.breakIt(network)
			storage := cache.NewMemoryStorage(0)
			w := newTestWorker(t, network, storage)

			err := w.Install(context.Background())
			require.ErrorIs(t, err, ErrInstallFailed)
			assert.ErrorIs(t, err, tc.cause)
			assert.Equal(t, StateRedundant, w.State())
			assert.False(t, w.SkipWaiting())

			has, err := storage.Has(context.Background(), "v1")
			require.NoError(t, err)
			assert.False(t, has, "a failed install must not leave its generation behind")

			assert.ErrorIs(t, w.Activate(context.Background()), ErrNotInstalled)
		})
	}
}

func TestInstallKeepsPreexistingGenerationOnFailure(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStorage(0)
	generation, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, generation.Put(ctx, "GET http://app.test/", cache.NewSnapshot(200, nil, []byte("old"))))

	network := newFakeNetwork()
	network.setOffline(true)
	w := newTestWorker(t, network, storage)
	require.Error(t, w.Install(ctx))

	assert.Equal(t, []string{"GET http://app.test/"}, generationKeys(t, storage, "v1"))
}

func TestInstallRunsOnce(t *testing.T) {
	w := newTestWorker(t, newFakeNetwork(), cache.NewMemoryStorage(0))
	require.NoError(t, w.Install(context.Background()))
	assert.ErrorIs(t, w.Install(context.Background()), ErrInvalidState)
}

func TestActivateDeletesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStorage(0)
	for _, stale := range []string{"task-manager-v0", "old-a", "old-b"} {
		_, err := storage.Open(ctx, stale)
		require.NoError(t, err)
	}
	clients := NewClients()
	clients.Add("http://app.test/")
	clients.Add("http://app.test/?filter=done")

	w := newTestWorker(t, newFakeNetwork(), storage, func(c *Config) { c.Clients = clients })
	require.NoError(t, w.Install(ctx))
	require.NoError(t, w.Activate(ctx))

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, names)
	assert.Equal(t, StateActivated, w.State())
	for _, client := range clients.MatchAll() {
		assert.Equal(t, "v1", client.Controller)
	}
}

func TestActivateRequiresInstall(t *testing.T) {
	w := newTestWorker(t, newFakeNetwork(), cache.NewMemoryStorage(0))
	assert.ErrorIs(t, w.Activate(context.Background()), ErrNotInstalled)
	assert.Equal(t, StateParsed, w.State())
}
