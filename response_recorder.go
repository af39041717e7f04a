package offlinecache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// ResponseRecorder captures a response written by an in-process handler.
type ResponseRecorder struct {
	mu          sync.Mutex
	status      int
	header      http.Header
	sentHeader  http.Header // header as it was when the status line was written
	body        *bytes.Buffer
	wroteHeader bool
}

func NewResponseRecorder() *ResponseRecorder {
	return &ResponseRecorder{
		status: http.StatusOK,
		header: make(http.Header),
		body:   &bytes.Buffer{},
	}
}

// Header implements http.ResponseWriter
func (r *ResponseRecorder) Header() http.Header {
	return r.header
}

// Write implements http.ResponseWriter
func (r *ResponseRecorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(p)
}

// WriteHeader implements http.ResponseWriter. Only the first call counts.
func (r *ResponseRecorder) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.sentHeader = r.header.Clone()
}

// Body returns the recorded body bytes.
func (r *ResponseRecorder) Body() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Bytes()
}

func (r *ResponseRecorder) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result converts the recording into a client-side response for req.
func (r *ResponseRecorder) Result(req *http.Request) *http.Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	header := r.sentHeader
	if !r.wroteHeader {
		header = r.header
	}
	header = header.Clone()
	body := append([]byte(nil), r.body.Bytes()...)
	if header.Get("Content-Type") == "" && len(body) > 0 {
		header.Set("Content-Type", http.DetectContentType(body))
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        fmt.Sprintf("%03d %s", r.status, http.StatusText(r.status)),
		StatusCode:    r.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// HandlerFetcher serves requests from an in-process handler, so an
// application can sit behind a Worker without a real network hop.
type HandlerFetcher struct {
	Handler http.Handler
}

// RoundTrip implements http.RoundTripper. A handler panic is reported as a
// network failure.
func (f HandlerFetcher) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	recorder := NewResponseRecorder()
	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()

	inbound := req.Clone(req.Context())
	inbound.RequestURI = req.URL.RequestURI()
	inbound.Host = req.URL.Host
	if inbound.Body == nil {
		inbound.Body = http.NoBody
	}
	f.Handler.ServeHTTP(recorder, inbound)
	return recorder.Result(req), nil
}
