// Package session holds the mutable state of one build session: the
// store snapshot taken at workflow start, the set of configured upload
// backends, and a take-once shutdown signal that gates process exit.
package session

import (
	"errors"
	"sync"

	"github.com/mightyiam/magic-nix-cache/pkg/backend"
	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// ErrAlreadySignaled is returned by NotifyShutdown after the signal has
// been consumed. Delivering the signal twice is not fatal; callers log
// it and carry on.
var ErrAlreadySignaled = errors.New("shutdown already signaled")

// SignalError wraps a shutdown notification failure. It is always
// non-fatal from the controller's perspective.
type SignalError struct {
	Err error
}

func (e *SignalError) Error() string {
	return "shutdown signal: " + e.Err.Error()
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

// IsSignalError reports whether err is a shutdown notification failure.
func IsSignalError(err error) bool {
	var se *SignalError
	return errors.As(err, &se)
}

// Session is the process-wide state shared between the workflow
// controller and the serving layer. The snapshot is replaced wholesale
// under the mutex; it is never mutated in place, so a reference read
// under the mutex stays valid after release.
type Session struct {
	mu       sync.Mutex
	snapshot store.PathSet

	backends []backend.Backend

	signalMu   sync.Mutex
	signaled   bool
	shutdownCh chan struct{}
}

// New creates a session with an empty snapshot. Backends are kept in
// the given order; fan-out and drain iterate them in that order.
func New(backends ...backend.Backend) *Session {
	return &Session{
		snapshot:   store.NewPathSet(),
		backends:   backends,
		shutdownCh: make(chan struct{}),
	}
}

// Snapshot returns the live snapshot. The returned set must be treated
// as read-only.
func (s *Session) Snapshot() store.PathSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// ReplaceSnapshot installs a new snapshot, discarding the previous one.
// The set must not be mutated by the caller afterwards.
func (s *Session) ReplaceSnapshot(snapshot store.PathSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
}

// Backends returns the configured backends in registration order.
func (s *Session) Backends() []backend.Backend {
	out := make([]backend.Backend, len(s.backends))
	copy(out, s.backends)
	return out
}

// NotifyShutdown consumes the shutdown signal, waking any listener on
// ShutdownRequested. The second and later calls return a SignalError
// wrapping ErrAlreadySignaled without delivering anything.
func (s *Session) NotifyShutdown() error {
	s.signalMu.Lock()
	defer s.signalMu.Unlock()

	if s.signaled {
		return &SignalError{Err: ErrAlreadySignaled}
	}
	s.signaled = true
	close(s.shutdownCh)
	return nil
}

// ShutdownRequested returns a channel that is closed once the workflow
// controller decides the process should exit.
func (s *Session) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}
