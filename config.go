package offlinecache

import (
	"net/http"
	"strings"
)

// DefaultVersion names the cache generation when Config.Version is empty.
const DefaultVersion = "task-manager-v1"

// DefaultManifest lists the assets a task-manager install must cache.
var DefaultManifest = []string{
	"./",
	"./index.html",
	"./style.css",
	"./script.js",
	"./manifest.json",
}

// Config holds the worker settings.
type Config struct {
	// Version names the cache generation. Bump it whenever the manifest contents change.
	Version string
	// Manifest lists root-relative paths cached at install, resolved against Scope.
	Manifest []string
	// Scope is the absolute URL of the application root, e.g. "http://localhost:8080/".
	Scope string
	// Network performs requests the cache cannot answer.
	Network      http.RoundTripper
	KeyGenerator func(*http.Request) string
	// ShouldCache decides whether a network response may be stored.
	ShouldCache func(statusCode int, responseType ResponseType) bool
	// MaxBodyBytes - do not cache bodies larger than this; larger ones stream through. Zero disables the limit.
	MaxBodyBytes int64
	// StripHeaders removes headers before storing (hop-by-hop etc).
	StripHeaders func(http.Header) http.Header
	// Clients is claimed on activate. Optional.
	Clients *Clients
	// Notifier displays push notifications. Optional.
	Notifier Notifier
}

// DefaultConfig provides defaults for every policy field left unset.
var DefaultConfig = &Config{
	Version:      DefaultVersion,
	Manifest:     DefaultManifest,
	KeyGenerator: DefaultKeyGenerator,
	ShouldCache: func(statusCode int, responseType ResponseType) bool {
		// Error pages and third-party responses never enter the cache
		return statusCode == http.StatusOK && responseType == TypeBasic
	},
	StripHeaders: stripHopByHop,
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Version == "" {
		out.Version = DefaultConfig.Version
	}
	if out.Manifest == nil {
		out.Manifest = DefaultConfig.Manifest
	}
	if out.Network == nil {
		out.Network = http.DefaultTransport
	}
	if out.KeyGenerator == nil {
		out.KeyGenerator = DefaultConfig.KeyGenerator
	}
	if out.ShouldCache == nil {
		out.ShouldCache = DefaultConfig.ShouldCache
	}
	if out.StripHeaders == nil {
		out.StripHeaders = DefaultConfig.StripHeaders
	}
	out.Manifest = append([]string(nil), out.Manifest...)
	return out
}

// DefaultKeyGenerator keys a request by method and absolute URL, without fragment.
func DefaultKeyGenerator(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	return r.Method + " " + u.String()
}

func stripHopByHop(header http.Header) http.Header {
	// Clone so caller can mutate safely.
	headerClone := header.Clone()
	if headerClone == nil {
		headerClone = make(http.Header)
	}

	for _, k := range []string{
		"Connection", "Proxy-Connection", "Keep-Alive",
		"Proxy-Authenticate", "Proxy-Authorization", "TE",
		"Trailer", "Transfer-Encoding", "Upgrade",
	} {
		headerClone.Del(k)
	}
	// Also remove hop-by-hop values referenced by Connection header
	if conn := header.Get("Connection"); conn != "" {
		for _, token := range strings.Split(conn, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				headerClone.Del(token)
			}
		}
	}
	return headerClone
}
