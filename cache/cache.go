package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/opencontainers/go-digest"
)

// ErrDigestMismatch is returned when a stored body no longer matches its recorded digest.
var ErrDigestMismatch = errors.New("snapshot digest mismatch")

// Cache is one cache generation: request keys mapped to response snapshots.
type Cache interface {
	// Match returns the snapshot stored under key.
	Match(ctx context.Context, key string) (*Snapshot, bool, error)
	// Put stores entry under key, replacing any previous snapshot.
	Put(ctx context.Context, key string, entry *Snapshot) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds named cache generations.
type Storage interface {
	// Open returns the generation called name, creating it if absent.
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	// Delete removes the generation and every snapshot in it.
	Delete(ctx context.Context, name string) (bool, error)
	// Keys lists generation names in creation order.
	Keys(ctx context.Context) ([]string, error)
	Close() error // For graceful shutdown/cleanup
}

// Snapshot is an immutable copy of a network response.
type Snapshot struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	StoredAt   time.Time
	// Digest identifies Body; storage backends verify it on read.
	Digest digest.Digest
}

// NewSnapshot copies status, headers and body into a new snapshot.
func NewSnapshot(statusCode int, headers http.Header, body []byte) *Snapshot {
	bodyCopy := append([]byte(nil), body...)
	return &Snapshot{
		StatusCode: statusCode,
		Headers:    headers.Clone(),
		Body:       bodyCopy,
		StoredAt:   time.Now().UTC(),
		Digest:     digest.FromBytes(bodyCopy),
	}
}

// Size returns the estimated memory footprint in bytes.
func (s *Snapshot) Size() int64 {
	bodySize := int64(len(s.Body))
	// ~30 bytes per header key/value pair overhead
	headerSize := int64(len(s.Headers) * 30)
	return bodySize + headerSize
}

// Verify checks Body against Digest. Snapshots without a digest always verify.
func (s *Snapshot) Verify() error {
	if s.Digest == "" {
		return nil
	}
	if err := s.Digest.Validate(); err != nil {
		return err
	}
	if s.Digest.Algorithm().FromBytes(s.Body) != s.Digest {
		return ErrDigestMismatch
	}
	return nil
}

// Response builds a new response whose body reads from a private view of the
// snapshot, so every caller can consume it independently.
func (s *Snapshot) Response(req *http.Request) *http.Response {
	header := s.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(s.Body)))
	return &http.Response{
		Status:        strconv.Itoa(s.StatusCode) + " " + http.StatusText(s.StatusCode),
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}
