// Package journal persists the set of store paths already uploaded to each
// backend. Workers consult it before uploading so a duplicate enqueue of the
// same path (explicit during the session, again via the end-of-session diff,
// or across process restarts on a reused runner) is a cheap no-op.
package journal

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mightyiam/magic-nix-cache/internal/logger"
	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// Journal is a badger-backed uploaded-path index. A nil *Journal is valid
// and records nothing, so callers don't branch on whether journaling is
// configured.
type Journal struct {
	db *badger.DB
}

// Open opens (or creates) the journal database at dir.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is too chatty for an ephemeral CI daemon

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload journal at %s: %w", dir, err)
	}

	logger.Debug("Upload journal opened", "dir", dir)
	return &Journal{db: db}, nil
}

// keyUploaded builds the key recording that a path was uploaded to a backend.
func keyUploaded(backendName string, p store.StorePath) []byte {
	return []byte("uploaded/" + backendName + "/" + p.String())
}

// IsUploaded reports whether the path is recorded as uploaded to the named
// backend. A nil journal reports false.
func (j *Journal) IsUploaded(ctx context.Context, backendName string, p store.StorePath) (bool, error) {
	if j == nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var found bool
	err := j.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyUploaded(backendName, p))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("journal lookup failed: %w", err)
	}
	return found, nil
}

// MarkUploaded records that the path was uploaded to the named backend.
// A nil journal records nothing.
func (j *Journal) MarkUploaded(ctx context.Context, backendName string, p store.StorePath) error {
	if j == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timestamp := []byte(time.Now().UTC().Format(time.RFC3339))
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyUploaded(backendName, p), timestamp)
	})
	if err != nil {
		return fmt.Errorf("journal update failed: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}
