package offlinecache

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
)

// Registration drives worker versions through install and activate and
// routes traffic to whichever worker is active.
type Registration struct {
	// Network serves requests while no worker is active.
	Network http.RoundTripper
	// OnUpdate runs after a new worker replaces an active one.
	OnUpdate func(active *Worker)

	lifecycle sync.Mutex

	mu     sync.RWMutex
	active *Worker
}

// NewRegistration creates an empty registration.
func NewRegistration(network http.RoundTripper) *Registration {
	if network == nil {
		network = http.DefaultTransport
	}
	return &Registration{Network: network}
}

// Register installs w and activates it immediately, since a successful
// install always signals skip-waiting. When install fails the previously
// active worker keeps serving and the install error is returned.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if err := w.Install(ctx); err != nil {
		return err
	}

	previous := r.Active()
	if err := w.Activate(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.active = w
	r.mu.Unlock()

	if previous != nil && previous != w {
		previous.retire()
		slog.Info("App updated! Refresh to see changes.", slog.String("from", previous.Version()), slog.String("to", w.Version()))
		if r.OnUpdate != nil {
			r.OnUpdate(w)
		}
	}
	return nil
}

// Active returns the worker currently serving, or nil.
func (r *Registration) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// RoundTrip implements http.RoundTripper through the active worker.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	if active := r.Active(); active != nil {
		return active.RoundTrip(req)
	}
	return r.Network.RoundTrip(req)
}

// ServeHTTP proxies through the active worker. Without one there is no scope
// to proxy to, so it answers 503.
func (r *Registration) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	active := r.Active()
	if active == nil {
		http.Error(rw, ErrNoActiveWorker.Error(), http.StatusServiceUnavailable)
		return
	}
	active.ServeHTTP(rw, req)
}
