// Package store defines the store path model and the resolver interface used
// to talk to the underlying content-addressed artifact store.
//
// A StorePath is the canonical identity of one artifact. Callers may refer to
// an artifact through indirection (a symlink, a relative name); the Resolver
// turns those identifiers into canonical paths, and only canonical paths are
// ever compared or handed to upload backends.
package store

import "sort"

// StorePath is the canonical, immutable identifier of one artifact in the
// store. Equality is by canonical identity, never by the original identifier
// a caller supplied.
type StorePath string

// String returns the canonical path as a plain string.
func (p StorePath) String() string {
	return string(p)
}

// PathSet is an unordered set of store paths.
//
// The zero value is not usable; create sets with NewPathSet.
type PathSet map[StorePath]struct{}

// NewPathSet creates a PathSet containing the given paths.
func NewPathSet(paths ...StorePath) PathSet {
	s := make(PathSet, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts a path into the set.
func (s PathSet) Add(p StorePath) {
	s[p] = struct{}{}
}

// Contains reports whether the set holds the given path.
func (s PathSet) Contains(p StorePath) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of paths in the set.
func (s PathSet) Len() int {
	return len(s)
}

// Difference returns a new set containing the paths present in s but not
// in other. Neither input set is modified.
func (s PathSet) Difference(other PathSet) PathSet {
	diff := make(PathSet)
	for p := range s {
		if _, ok := other[p]; !ok {
			diff[p] = struct{}{}
		}
	}
	return diff
}

// Sorted returns the set's paths as a lexically sorted slice. Sets have no
// inherent order; sorting is only for deterministic logging and uploads.
func (s PathSet) Sorted() []StorePath {
	paths := make([]StorePath, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}
