// Package memory implements an in-memory store.Resolver for tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// ErrUnknownIdentifier is the underlying cause reported when an identifier
// has no mapping in the resolver.
var ErrUnknownIdentifier = errors.New("unknown identifier")

// Resolver is a fixed-universe resolver backed by maps.
//
// Identifiers resolve to themselves when they name a known path, or through
// the alias table. Paths can be added while the resolver is in use to
// simulate a build producing new artifacts.
type Resolver struct {
	mu      sync.Mutex
	paths   store.PathSet
	aliases map[string]store.StorePath

	// enumerateErr, when set, is returned by the next Enumerate call.
	enumerateErr error
}

// NewResolver creates a Resolver whose store contains the given paths.
func NewResolver(paths ...store.StorePath) *Resolver {
	return &Resolver{
		paths:   store.NewPathSet(paths...),
		aliases: make(map[string]store.StorePath),
	}
}

// AddPath adds a path to the simulated store.
func (r *Resolver) AddPath(p store.StorePath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths.Add(p)
}

// AddAlias maps an identifier to a canonical path, simulating symlink
// indirection.
func (r *Resolver) AddAlias(identifier string, target store.StorePath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[identifier] = target
}

// FailEnumeration makes the next Enumerate call return the given error.
func (r *Resolver) FailEnumeration(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enumerateErr = err
}

// Resolve implements store.Resolver.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (store.StorePath, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if target, ok := r.aliases[identifier]; ok {
		return target, nil
	}
	if r.paths.Contains(store.StorePath(identifier)) {
		return store.StorePath(identifier), nil
	}
	return "", &store.ResolutionError{Identifier: identifier, Err: ErrUnknownIdentifier}
}

// Enumerate implements store.Resolver. The returned set is a copy.
func (r *Resolver) Enumerate(ctx context.Context) (store.PathSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enumerateErr != nil {
		err := r.enumerateErr
		r.enumerateErr = nil
		return nil, &store.EnumerationError{Err: err}
	}

	snapshot := store.NewPathSet()
	for p := range r.paths {
		snapshot.Add(p)
	}
	return snapshot, nil
}
