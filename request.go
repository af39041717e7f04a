package offlinecache

import (
	"net/http"
	"net/url"
	"strings"
)

// Destination is what a request is fetching, as reported by Sec-Fetch-Dest.
type Destination string

const (
	DestinationEmpty    Destination = ""
	DestinationDocument Destination = "document"
	DestinationImage    Destination = "image"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
	DestinationManifest Destination = "manifest"
)

// DestinationOf classifies r. Browsers send Sec-Fetch-Dest; older clients
// are recognised as navigating by Sec-Fetch-Mode or an Accept header that
// leads with text/html.
func DestinationOf(r *http.Request) Destination {
	if dest := strings.TrimSpace(r.Header.Get("Sec-Fetch-Dest")); dest != "" {
		return Destination(strings.ToLower(dest))
	}
	if strings.EqualFold(r.Header.Get("Sec-Fetch-Mode"), "navigate") {
		return DestinationDocument
	}
	if r.Method == http.MethodGet && prefersHTML(r.Header.Get("Accept")) {
		return DestinationDocument
	}
	return DestinationEmpty
}

func prefersHTML(accept string) bool {
	first, _, _ := strings.Cut(accept, ",")
	mediaType, _, _ := strings.Cut(first, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "text/html")
}

// ResponseType mirrors the fetch response types relevant to caching.
type ResponseType int

const (
	// TypeBasic is a same-origin response.
	TypeBasic ResponseType = iota
	// TypeCORS is a cross-origin response the origin explicitly shared.
	TypeCORS
	// TypeOpaque is any other cross-origin response.
	TypeOpaque
)

func (t ResponseType) String() string {
	switch t {
	case TypeBasic:
		return "basic"
	case TypeCORS:
		return "cors"
	case TypeOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// classifyResponse reports the type of resp fetched for a request to target.
func classifyResponse(scope, target *url.URL, resp *http.Response) ResponseType {
	if sameOrigin(scope, target) {
		return TypeBasic
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		return TypeCORS
	}
	return TypeOpaque
}

func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return origin(a) == origin(b)
}

func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return scheme + "://" + strings.ToLower(u.Hostname()) + ":" + port
}
