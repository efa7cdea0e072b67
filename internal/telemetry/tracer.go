package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for workflow and upload operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// Workflow attributes
	AttrRunID         = "workflow.run_id"
	AttrOriginalPaths = "workflow.num_original_paths"
	AttrFinalPaths    = "workflow.num_final_paths"
	AttrNewPaths      = "workflow.num_new_paths"

	// Batch and backend attributes
	AttrBackend   = "cache.backend" // gha, s3
	AttrNumPaths  = "cache.num_paths"
	AttrStorePath = "cache.store_path"
	AttrCacheKey  = "cache.key"
	AttrUploaded  = "cache.uploaded"
	AttrSkipped   = "cache.skipped"
	AttrFailed    = "cache.failed"
)

// BackendAttributes builds the standard attribute set for one backend's
// participation in a fan-out or drain.
func BackendAttributes(backend string, numPaths int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBackend, backend),
		attribute.Int(AttrNumPaths, numPaths),
	}
}
