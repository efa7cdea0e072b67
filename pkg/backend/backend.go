// Package backend defines the upload backend abstraction.
//
// A backend is a remote cache sink. It accepts batches of canonical store
// paths into an internal queue (acceptance, not completion) and uploads them
// asynchronously. Its one terminal operation, Shutdown, drains the queue and
// reports what was actually uploaded. Which backends are present is purely a
// runtime question: an unconfigured backend simply never appears in the
// session's backend list.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// Backend is a configured remote cache sink.
//
// Implementations must tolerate duplicate enqueues of the same path: the
// controller enqueues explicitly requested paths during the session and again
// via the end-of-session store diff, without deduplication.
type Backend interface {
	// Name identifies the backend in logs, errors, and reports.
	Name() string

	// Enqueue accepts a batch of canonical store paths into the backend's
	// internal upload queue. It returns once the batch is accepted, not once
	// it is uploaded, and must not block indefinitely.
	Enqueue(ctx context.Context, paths []store.StorePath) error

	// Shutdown drains the internal queue, waiting until every accepted path
	// has been uploaded or has failed terminally, and reports the result.
	// Shutdown is one-shot: a second call returns ErrAlreadyShutDown.
	Shutdown(ctx context.Context) (Report, error)
}

// Report describes what a backend uploaded over its lifetime. It is only
// complete after Shutdown returns.
type Report struct {
	// Backend is the reporting backend's name.
	Backend string

	// Uploaded lists the paths that were durably uploaded.
	Uploaded []store.StorePath

	// Skipped counts paths that needed no upload (already present remotely,
	// e.g. recorded in the upload journal).
	Skipped int

	// Failed counts paths whose upload failed terminally.
	Failed int
}

// ErrAlreadyShutDown is returned by a second Shutdown call on the same
// backend.
var ErrAlreadyShutDown = errors.New("backend already shut down")

// ErrQueueFull is the underlying cause when a backend's bounded queue cannot
// accept more paths.
var ErrQueueFull = errors.New("upload queue full")

// Error wraps a failure of a specific backend so fan-out callers can report
// which sink failed.
type Error struct {
	Backend string
	Op      string // "enqueue" or "shutdown"
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
