// Package memory implements an in-memory backend.Backend for tests.
package memory

import (
	"context"
	"sync"

	"github.com/mightyiam/magic-nix-cache/pkg/backend"
	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// Backend records every batch it accepts. Failures can be injected for both
// operations. Duplicate paths are tolerated, matching the contract real
// backends must honor.
type Backend struct {
	name string

	mu          sync.Mutex
	batches     [][]store.StorePath
	shutDown    bool
	enqueueErr  error
	shutdownErr error
}

// New creates a named in-memory backend.
func New(name string) *Backend {
	return &Backend{name: name}
}

// FailEnqueue makes every subsequent Enqueue call fail with err.
func (b *Backend) FailEnqueue(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueueErr = err
}

// FailShutdown makes Shutdown fail with err (after recording the drain).
func (b *Backend) FailShutdown(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdownErr = err
}

// Batches returns the accepted batches in arrival order.
func (b *Backend) Batches() [][]store.StorePath {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]store.StorePath, len(b.batches))
	copy(out, b.batches)
	return out
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return b.name }

// Enqueue implements backend.Backend.
func (b *Backend) Enqueue(ctx context.Context, paths []store.StorePath) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutDown {
		return &backend.Error{Backend: b.name, Op: "enqueue", Err: backend.ErrAlreadyShutDown}
	}
	if b.enqueueErr != nil {
		return &backend.Error{Backend: b.name, Op: "enqueue", Err: b.enqueueErr}
	}

	batch := make([]store.StorePath, len(paths))
	copy(batch, paths)
	b.batches = append(b.batches, batch)
	return nil
}

// Shutdown implements backend.Backend. The report lists every accepted path,
// duplicates included.
func (b *Backend) Shutdown(ctx context.Context) (backend.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutDown {
		return backend.Report{Backend: b.name}, &backend.Error{
			Backend: b.name, Op: "shutdown", Err: backend.ErrAlreadyShutDown,
		}
	}
	b.shutDown = true

	report := backend.Report{Backend: b.name}
	for _, batch := range b.batches {
		report.Uploaded = append(report.Uploaded, batch...)
	}

	if b.shutdownErr != nil {
		return report, &backend.Error{Backend: b.name, Op: "shutdown", Err: b.shutdownErr}
	}
	return report, nil
}
