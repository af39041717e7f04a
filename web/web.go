// Package web embeds the task manager's static assets and serves them as
// the default origin behind the offline cache.
package web

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed static
var static embed.FS

// Assets is the asset tree rooted at the application directory.
var Assets, _ = fs.Sub(static, "static")

var startTime = time.Now()

// Handler serves Assets by exact name, with "/" answering index.html.
// Unlike http.FileServer it never redirects, so every manifest path
// answers 200 directly.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}
		content, err := fs.ReadFile(Assets, name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if name == "manifest.json" {
			w.Header().Set("Content-Type", "application/manifest+json")
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, name, startTime, bytes.NewReader(content))
	})
}
