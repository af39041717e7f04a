package offlinecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spdeepak/offlinecache/cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// fetched is the outcome of a miss. A buffered result holds the whole body
// so every caller sharing the flight gets an independent copy. An unbuffered
// result streams resp.Body and belongs to the caller that ran the fetch.
type fetched struct {
	resp     *http.Response
	body     []byte
	buffered bool
	// hit is set when the key was stored while the caller waited to fetch.
	hit *cache.Snapshot
}

func (f *fetched) shareable() bool {
	return f.hit != nil || f.buffered
}

func (f *fetched) response(req *http.Request) *http.Response {
	if f.hit != nil {
		resp := f.hit.Response(req)
		resp.Header.Set(CacheStatusHeader, "HIT")
		return resp
	}
	if !f.buffered {
		f.resp.Header.Set(CacheStatusHeader, "MISS")
		f.resp.Request = req
		return f.resp
	}
	out := *f.resp
	out.Header = f.resp.Header.Clone()
	out.Header.Set(CacheStatusHeader, "MISS")
	out.Header.Set("Content-Length", strconv.Itoa(len(f.body)))
	out.ContentLength = int64(len(f.body))
	out.TransferEncoding = nil
	out.Body = io.NopCloser(bytes.NewReader(f.body))
	out.Request = req
	return &out
}

func (f *fetched) close() {
	if f.resp != nil && !f.buffered {
		_ = f.resp.Body.Close()
	}
}

// RoundTrip implements http.RoundTripper with a cache-first policy: an
// activated worker answers GETs from its generation and falls back to the
// network, storing successful same-origin responses. Everything else goes to
// the network untouched.
func (w *Worker) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	if w.State() != StateActivated || req.Method != http.MethodGet {
		return w.cfg.Network.RoundTrip(req)
	}
	cacheKey := w.cfg.KeyGenerator(req)
	generation := w.currentGeneration()
	if cacheKey == "" || generation == nil {
		// fallback to not caching if key generation fails
		return w.cfg.Network.RoundTrip(req)
	}

	ctx, span := tracer.Start(req.Context(), "offlinecache.Fetch",
		trace.WithAttributes(
			attribute.String("cache.version", w.cfg.Version),
			attribute.String("http.url", req.URL.String()),
		))
	defer func() { endSpan(span, err) }()

	if snapshot := w.match(ctx, generation, cacheKey); snapshot != nil {
		span.SetAttributes(attribute.String("cache.status", "HIT"))
		resp := snapshot.Response(req)
		resp.Header.Set(CacheStatusHeader, "HIT")
		return resp, nil
	}

	result, err := w.fetchShared(ctx, req, generation, cacheKey)
	if err != nil {
		// a caller that gave up does not get a fallback document
		if ctx.Err() == nil && DestinationOf(req) == DestinationDocument {
			slog.Info("Serving offline document", slog.String("url", req.URL.String()), slog.Any("error", err))
			span.SetAttributes(attribute.String("cache.status", "OFFLINE"))
			return OfflineResponse(req), nil
		}
		return nil, err
	}
	if result.hit != nil {
		span.SetAttributes(attribute.String("cache.status", "HIT"))
	} else {
		span.SetAttributes(attribute.String("cache.status", "MISS"))
	}
	return result.response(req), nil
}

// fetchShared collapses concurrent misses for cacheKey into one fetch run on
// the first caller's context. Waiting callers fetch on their own when that
// result cannot be shared or failed only because the first caller went away.
func (w *Worker) fetchShared(ctx context.Context, req *http.Request, generation cache.Cache, cacheKey string) (*fetched, error) {
	var leader bool
	ch := w.flight.DoChan(cacheKey, func() (any, error) {
		leader = true
		return w.fetchAndStore(ctx, req, generation, cacheKey)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		go func() {
			late := <-ch
			if f, ok := late.Val.(*fetched); ok && leader {
				f.close()
			}
		}()
		return nil, ctx.Err()
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("fetch.shared", res.Shared))
	if leader {
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*fetched), nil
	}

	if res.Err != nil {
		if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
			return w.fetchAndStore(ctx, req, generation, cacheKey)
		}
		return nil, res.Err
	}
	if result := res.Val.(*fetched); result.shareable() {
		return result, nil
	}
	return w.fetchAndStore(ctx, req, generation, cacheKey)
}

// match treats any storage failure as a miss.
func (w *Worker) match(ctx context.Context, generation cache.Cache, cacheKey string) *cache.Snapshot {
	snapshot, ok, err := generation.Match(ctx, cacheKey)
	if err != nil {
		slog.Debug("Cache lookup failed", slog.String("cacheKey", cacheKey), slog.Any("error", err))
		return nil
	}
	if !ok || snapshot == nil {
		return nil
	}
	return snapshot
}

// fetchAndStore fetches req and stores the response when it may be cached.
// Responses that are not cached, event streams and bodies over MaxBodyBytes
// are returned as streams without being read to the end.
func (w *Worker) fetchAndStore(ctx context.Context, req *http.Request, generation cache.Cache, cacheKey string) (*fetched, error) {
	// a previous flight may have stored the key since the caller looked
	if snapshot := w.match(ctx, generation, cacheKey); snapshot != nil {
		return &fetched{hit: snapshot}, nil
	}

	resp, err := w.cfg.Network.RoundTrip(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	responseType := classifyResponse(w.scope, req.URL, resp)
	if !w.cfg.ShouldCache(resp.StatusCode, responseType) || isEventStream(resp.Header) {
		return &fetched{resp: resp}, nil
	}

	limit := w.cfg.MaxBodyBytes
	var reader io.Reader = resp.Body
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if limit > 0 && int64(len(body)) > limit {
		slog.Debug("Response too large to cache", slog.String("cacheKey", cacheKey), slog.Int64("limit", limit))
		resp.Body = prefixedBody{Reader: io.MultiReader(bytes.NewReader(body), resp.Body), Closer: resp.Body}
		return &fetched{resp: resp}, nil
	}
	_ = resp.Body.Close()

	snapshot := cache.NewSnapshot(resp.StatusCode, w.cfg.StripHeaders(resp.Header), body)
	if err := generation.Put(ctx, cacheKey, snapshot); err != nil {
		slog.Error("Failed to cache response", slog.String("cacheKey", cacheKey), slog.Any("error", err))
	}
	return &fetched{resp: resp, body: body, buffered: true}, nil
}

// prefixedBody replays the bytes already read ahead of the rest of a body.
type prefixedBody struct {
	io.Reader
	io.Closer
}

func isEventStream(header http.Header) bool {
	mediaType, _, _ := strings.Cut(header.Get("Content-Type"), ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "text/event-stream")
}

// ServeHTTP answers inbound requests as a reverse proxy for Scope: the path
// and query are resolved against Scope and sent through RoundTrip.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	serveThrough(rw, r, w.scope, w)
}

func serveThrough(rw http.ResponseWriter, r *http.Request, scope *url.URL, rt http.RoundTripper) {
	outbound, err := outboundRequest(r, scope)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := rt.RoundTrip(outbound)
	if err != nil {
		slog.Warn("Fetch failed", slog.String("url", outbound.URL.String()), slog.Any("error", err))
		http.Error(rw, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for headerKey, headerValues := range stripHopByHop(resp.Header) {
		for _, headerValue := range headerValues {
			rw.Header().Add(headerKey, headerValue)
		}
	}
	rw.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(rw, resp.Body); err != nil {
		slog.Debug("Response copy aborted", slog.String("url", outbound.URL.String()), slog.Any("error", err))
	}
}

func outboundRequest(r *http.Request, scope *url.URL) (*http.Request, error) {
	target := *scope
	target.Path = r.URL.Path
	target.RawPath = r.URL.RawPath
	target.RawQuery = r.URL.RawQuery
	target.Fragment = ""

	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = stripHopByHop(r.Header)
	out.Header.Del("Host")
	out.ContentLength = r.ContentLength
	return out, nil
}
