package offlinecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/spdeepak/offlinecache/cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State is a worker's position in its lifecycle.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	// StateRedundant is terminal: the worker failed to install or was replaced.
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Worker owns one cache generation and intercepts requests once activated.
type Worker struct {
	cfg     Config
	scope   *url.URL
	storage cache.Storage

	mu          sync.RWMutex
	state       State
	generation  cache.Cache
	skipWaiting bool

	// Concurrent misses for the same key share one network fetch.
	flight singleflight.Group
}

// New creates a worker for cfg.Version backed by storage.
func New(cfg *Config, storage cache.Storage) (*Worker, error) {
	if cfg == nil {
		cfg = DefaultConfig
	}
	if storage == nil {
		return nil, errors.New("cache storage is required")
	}
	resolved := cfg.withDefaults()
	scope, err := url.Parse(resolved.Scope)
	if err != nil {
		return nil, fmt.Errorf("parse scope: %w", err)
	}
	if !scope.IsAbs() || scope.Host == "" {
		return nil, fmt.Errorf("scope %q must be an absolute URL", resolved.Scope)
	}
	return &Worker{cfg: resolved, scope: scope, storage: storage}, nil
}

// Version returns the cache generation name this worker owns.
func (w *Worker) Version() string {
	return w.cfg.Version
}

// Scope returns the application root URL.
func (w *Worker) Scope() *url.URL {
	u := *w.scope
	return &u
}

func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// SkipWaiting reports whether a successful install asked to activate
// without waiting for existing clients to close.
func (w *Worker) SkipWaiting() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipWaiting
}

func (w *Worker) transition(from, to State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return false
	}
	w.state = to
	return true
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *Worker) resolve(path string) (*url.URL, error) {
	return w.scope.Parse(path)
}

type manifestEntry struct {
	key      string
	snapshot *cache.Snapshot
}

// Install opens the worker's generation and stores every manifest resource.
// Nothing is stored unless every resource was fetched successfully.
func (w *Worker) Install(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "offlinecache.Install",
		trace.WithAttributes(attribute.String("cache.version", w.cfg.Version)))
	defer func() { endSpan(span, err) }()

	if !w.transition(StateParsed, StateInstalling) {
		return fmt.Errorf("%w: cannot install a %s worker", ErrInvalidState, w.State())
	}
	slog.Info("Service worker installing", slog.String("version", w.cfg.Version))

	fail := func(cause error) error {
		w.setState(StateRedundant)
		slog.Error("Error caching assets", slog.String("version", w.cfg.Version), slog.Any("error", cause))
		return fmt.Errorf("%w: %w", ErrInstallFailed, cause)
	}

	existed, err := w.storage.Has(ctx, w.cfg.Version)
	if err != nil {
		return fail(err)
	}
	generation, err := w.storage.Open(ctx, w.cfg.Version)
	if err != nil {
		return fail(err)
	}

	slog.Info("Caching app assets", slog.Int("count", len(w.cfg.Manifest)))
	entries, err := w.fetchManifest(ctx)
	if err != nil {
		w.discard(ctx, existed)
		return fail(err)
	}
	for _, entry := range entries {
		if err := generation.Put(ctx, entry.key, entry.snapshot); err != nil {
			w.discard(ctx, existed)
			return fail(err)
		}
	}

	w.mu.Lock()
	w.generation = generation
	w.state = StateInstalled
	w.skipWaiting = true
	w.mu.Unlock()
	slog.Info("Assets cached successfully", slog.String("version", w.cfg.Version))
	return nil
}

// discard drops a generation this install created so a partial cache never
// outlives the failed install.
func (w *Worker) discard(ctx context.Context, existed bool) {
	if existed {
		return
	}
	if _, err := w.storage.Delete(context.WithoutCancel(ctx), w.cfg.Version); err != nil {
		slog.Error("Failed to discard partial cache", slog.String("version", w.cfg.Version), slog.Any("error", err))
	}
}

func (w *Worker) fetchManifest(ctx context.Context) ([]manifestEntry, error) {
	entries := make([]manifestEntry, len(w.cfg.Manifest))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, path := range w.cfg.Manifest {
		group.Go(func() error {
			target, err := w.resolve(path)
			if err != nil {
				return fmt.Errorf("resolve %q: %w", path, err)
			}
			req, err := http.NewRequestWithContext(groupCtx, http.MethodGet, target.String(), nil)
			if err != nil {
				return err
			}
			resp, err := w.cfg.Network.RoundTrip(req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", target, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return fmt.Errorf("fetch %s: %w %d", target, ErrBadStatus, resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read %s: %w", target, err)
			}
			entries[i] = manifestEntry{
				key:      w.cfg.KeyGenerator(req),
				snapshot: cache.NewSnapshot(resp.StatusCode, w.cfg.StripHeaders(resp.Header), body),
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Activate deletes every generation but the worker's own and claims all clients.
func (w *Worker) Activate(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "offlinecache.Activate",
		trace.WithAttributes(attribute.String("cache.version", w.cfg.Version)))
	defer func() { endSpan(span, err) }()

	if !w.transition(StateInstalled, StateActivating) {
		return fmt.Errorf("%w: worker is %s", ErrNotInstalled, w.State())
	}
	slog.Info("Service worker activating", slog.String("version", w.cfg.Version))

	names, err := w.storage.Keys(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if name == w.cfg.Version {
			continue
		}
		slog.Info("Deleting old cache", slog.String("cache", name))
		if _, err := w.storage.Delete(ctx, name); err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
	}

	w.setState(StateActivated)
	if w.cfg.Clients != nil {
		claimed := w.cfg.Clients.Claim(w.cfg.Version)
		span.SetAttributes(attribute.Int("clients.claimed", claimed))
	}
	slog.Info("Service worker activated", slog.String("version", w.cfg.Version))
	return nil
}

// retire marks a replaced worker redundant.
func (w *Worker) retire() {
	w.setState(StateRedundant)
}

func (w *Worker) currentGeneration() cache.Cache {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.generation
}
