package offlinecache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultKeyGenerator(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://app.test/index.html?x=1#top", nil)
	assert.Equal(t, "GET http://app.test/index.html?x=1", DefaultKeyGenerator(req))

	head := httptest.NewRequest(http.MethodHead, "http://app.test/index.html", nil)
	assert.NotEqual(t, DefaultKeyGenerator(req), DefaultKeyGenerator(head))
}

func TestStripHopByHop(t *testing.T) {
	header := http.Header{
		"Connection":        []string{"keep-alive, X-Session"},
		"Keep-Alive":        []string{"timeout=5"},
		"Transfer-Encoding": []string{"chunked"},
		"X-Session":         []string{"abc"},
		"Content-Type":      []string{"text/css"},
	}
	stripped := stripHopByHop(header)

	assert.Equal(t, http.Header{"Content-Type": []string{"text/css"}}, stripped)
	assert.Equal(t, "abc", header.Get("X-Session"), "input header must not be mutated")
	assert.NotNil(t, stripHopByHop(nil))
}

func TestDefaultShouldCache(t *testing.T) {
	should := DefaultConfig.ShouldCache
	assert.True(t, should(http.StatusOK, TypeBasic))
	assert.False(t, should(http.StatusOK, TypeOpaque))
	assert.False(t, should(http.StatusOK, TypeCORS))
	assert.False(t, should(http.StatusNoContent, TypeBasic))
	assert.False(t, should(http.StatusNotFound, TypeBasic))
}

func TestWithDefaultsCopiesManifest(t *testing.T) {
	cfg := (&Config{}).withDefaults()
	cfg.Manifest[0] = "./changed"
	assert.Equal(t, "./", DefaultManifest[0])
	assert.Equal(t, DefaultVersion, cfg.Version)
	assert.NotNil(t, cfg.Network)
}
