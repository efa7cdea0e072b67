package store

import (
	"context"
	"errors"
	"fmt"
)

// Resolver provides access to the underlying artifact store.
//
// Implementations must be safe for concurrent use: the workflow controller
// calls Resolve from request handlers while Enumerate may be running for a
// snapshot.
type Resolver interface {
	// Resolve normalizes a caller-supplied identifier to a canonical store
	// path, following any indirection. Returns a *ResolutionError if the
	// identifier does not correspond to a store path.
	Resolve(ctx context.Context, identifier string) (StorePath, error)

	// Enumerate returns the set of all paths currently present in the store.
	// Returns an *EnumerationError if the store cannot be listed.
	Enumerate(ctx context.Context) (PathSet, error)
}

// ResolutionError reports an identifier that could not be resolved to a
// canonical store path.
type ResolutionError struct {
	Identifier string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q to a store path: %v", e.Identifier, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// EnumerationError reports a failure to list the store contents.
type EnumerationError struct {
	Err error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("cannot enumerate store paths: %v", e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// IsResolutionError reports whether err is (or wraps) a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// IsEnumerationError reports whether err is (or wraps) an EnumerationError.
func IsEnumerationError(err error) bool {
	var ee *EnumerationError
	return errors.As(err, &ee)
}
