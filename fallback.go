package offlinecache

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// CacheStatusHeader reports how the interceptor answered a GET.
const CacheStatusHeader = "X-Cache-Status"

const offlineDocument = `<!DOCTYPE html>
<html>
<head>
    <title>Offline - Task Manager</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            text-align: center;
            padding: 2rem;
        }
        .offline-content {
            background: rgba(255, 255, 255, 0.1);
            padding: 2rem;
            border-radius: 16px;
        }
        button {
            background: white;
            color: #4f46e5;
            border: none;
            padding: 0.875rem 1.5rem;
            border-radius: 8px;
            font-size: 1rem;
            font-weight: 600;
            cursor: pointer;
        }
    </style>
</head>
<body>
    <div class="offline-content">
        <h1>You're Offline</h1>
        <p>No internet connection, but the app is still available!</p>
        <button onclick="window.location.reload()">Try Again</button>
    </div>
</body>
</html>
`

// OfflineResponse synthesizes the document served to navigations when both
// the cache and the network fail.
func OfflineResponse(req *http.Request) *http.Response {
	body := []byte(offlineDocument)
	header := make(http.Header)
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	header.Set("Cache-Control", "no-store")
	header.Set(CacheStatusHeader, "OFFLINE")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
