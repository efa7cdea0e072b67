// Package gha implements a backend.Backend that mirrors store paths to the
// GitHub Actions cache service.
//
// Each store path becomes one cache entry: the path is archived (tar+gzip),
// reserved under a key derived from its base name, uploaded, and committed.
// The service rejects duplicate keys with 409, which the backend treats as
// "already cached" rather than a failure.
package gha

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mightyiam/magic-nix-cache/internal/logger"
	"github.com/mightyiam/magic-nix-cache/internal/telemetry"
	"github.com/mightyiam/magic-nix-cache/pkg/backend"
	"github.com/mightyiam/magic-nix-cache/pkg/journal"
	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// errAlreadyCached reports a reserve conflict: the key is already present in
// the cache service.
var errAlreadyCached = errors.New("cache key already exists")

// cacheVersion namespaces this tool's entries within the cache service.
const cacheVersion = "magic-nix-cache-v1"

// Config configures the GitHub Actions cache backend.
type Config struct {
	// URL is the cache service base URL (ACTIONS_CACHE_URL).
	URL string

	// Token is the runtime bearer token (ACTIONS_RUNTIME_TOKEN).
	Token string

	// KeyPrefix namespaces cache keys, e.g. per nixpkgs revision.
	KeyPrefix string

	// Uploader tunes the queue and worker pool.
	Uploader backend.UploaderConfig
}

// Backend mirrors store paths to the GitHub Actions cache.
type Backend struct {
	client   *Client
	uploader *backend.Uploader
}

// New creates and starts the backend. The journal may be nil.
func New(ctx context.Context, cfg Config, j *journal.Journal) (*Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("gha backend requires a cache service URL")
	}

	client := NewClient(cfg.URL, cfg.Token)
	b := &Backend{client: client}

	b.uploader = backend.NewUploader("gha", cfg.Uploader, func(ctx context.Context, p store.StorePath) error {
		return b.uploadPath(ctx, cfg.KeyPrefix, j, p)
	})
	b.uploader.Start(ctx)

	return b, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "gha" }

// Enqueue implements backend.Backend.
func (b *Backend) Enqueue(ctx context.Context, paths []store.StorePath) error {
	return b.uploader.Enqueue(ctx, paths)
}

// Shutdown implements backend.Backend.
func (b *Backend) Shutdown(ctx context.Context) (backend.Report, error) {
	return b.uploader.Drain(ctx)
}

// uploadPath archives one store path and pushes it through the
// reserve/upload/commit sequence.
func (b *Backend) uploadPath(ctx context.Context, keyPrefix string, j *journal.Journal, p store.StorePath) error {
	uploaded, err := j.IsUploaded(ctx, "gha", p)
	if err != nil {
		return err
	}
	if uploaded {
		logger.Debug("Path already journaled as uploaded", "backend", "gha", "path", p)
		return backend.ErrSkipUpload
	}

	key := cacheKey(keyPrefix, p)
	telemetry.SetAttributes(ctx, attribute.String(telemetry.AttrCacheKey, key))

	archive, err := backend.ArchivePath(p)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", p, err)
	}

	cacheID, err := b.client.Reserve(ctx, key, cacheVersion)
	if err == errAlreadyCached {
		logger.Debug("Path already present in cache service", "key", key)
		if markErr := j.MarkUploaded(ctx, "gha", p); markErr != nil {
			logger.Warn("Failed to journal cached path", "path", p, "error", markErr)
		}
		return backend.ErrSkipUpload
	}
	if err != nil {
		return fmt.Errorf("failed to reserve cache entry for %s: %w", p, err)
	}

	if err := b.client.Upload(ctx, cacheID, archive); err != nil {
		return fmt.Errorf("failed to upload %s: %w", p, err)
	}
	if err := b.client.Commit(ctx, cacheID, int64(len(archive))); err != nil {
		return fmt.Errorf("failed to commit %s: %w", p, err)
	}

	if err := j.MarkUploaded(ctx, "gha", p); err != nil {
		logger.Warn("Failed to journal uploaded path", "path", p, "error", err)
	}

	logger.Debug("Uploaded path to GitHub Actions cache", "key", key, "bytes", len(archive))
	return nil
}

// cacheKey derives the cache key for a store path. The base name of a store
// path starts with its content hash, so keys are unique per artifact.
func cacheKey(prefix string, p store.StorePath) string {
	base := filepath.Base(p.String())
	if prefix == "" {
		return base
	}
	return prefix + "-" + base
}
