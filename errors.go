package offlinecache

import "errors"

var (
	// ErrInstallFailed is returned when a manifest resource could not be fetched or stored.
	ErrInstallFailed = errors.New("install failed")

	// ErrNotInstalled is returned when activating a worker that has not installed.
	ErrNotInstalled = errors.New("worker not installed")

	// ErrInvalidState is returned when a lifecycle step runs out of order.
	ErrInvalidState = errors.New("invalid worker state")

	// ErrBadStatus is returned when a manifest resource answers with a non-2xx status.
	ErrBadStatus = errors.New("unexpected response status")

	// ErrHandlerPanic is returned by HandlerFetcher when the wrapped handler panics.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNoActiveWorker is returned when a registration has nothing to route to.
	ErrNoActiveWorker = errors.New("no active worker")
)
