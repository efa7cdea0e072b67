// Package workflow implements the build session lifecycle: snapshot the
// store at start, diff it at finish to discover freshly built paths, fan
// batches out to every configured backend, and coordinate the final drain
// that gates process exit.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mightyiam/magic-nix-cache/internal/logger"
	"github.com/mightyiam/magic-nix-cache/internal/telemetry"
	"github.com/mightyiam/magic-nix-cache/pkg/backend"
	"github.com/mightyiam/magic-nix-cache/pkg/metrics"
	"github.com/mightyiam/magic-nix-cache/pkg/session"
	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// FinishReport is the observable outcome of Finish: the snapshot counts
// plus each backend's drain report, in backend registration order.
// Backends that failed to drain contribute whatever partial report they
// returned.
type FinishReport struct {
	NumOriginalPaths int
	NumFinalPaths    int
	NumNewPaths      int
	Reports          []backend.Report
}

// Controller orchestrates the three workflow operations against a shared
// session. It is safe for concurrent use; snapshot swaps happen under the
// session's lock while resolver calls stay outside it.
type Controller struct {
	runID    string
	session  *session.Session
	resolver store.Resolver
	metrics  *metrics.WorkflowMetrics
}

// New creates a controller bound to the given session and resolver.
// metrics may be nil when collection is disabled.
func New(sess *session.Session, resolver store.Resolver, m *metrics.WorkflowMetrics) *Controller {
	return &Controller{
		runID:    uuid.NewString(),
		session:  sess,
		resolver: resolver,
		metrics:  m,
	}
}

// RunID identifies this workflow run in logs.
func (c *Controller) RunID() string {
	return c.runID
}

// Start snapshots the store and installs the result as the session's
// live snapshot, replacing any previous one. On enumeration failure the
// previous snapshot is left untouched.
//
// Returns the number of paths in the new snapshot.
func (c *Controller) Start(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "workflow.start")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrRunID, c.runID))

	snapshot, err := c.resolver.Enumerate(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int(telemetry.AttrOriginalPaths, snapshot.Len()))

	c.session.ReplaceSnapshot(snapshot)
	c.metrics.RecordOriginalPaths(snapshot.Len())

	logger.Info("Workflow started",
		"run_id", c.runID,
		"num_original_paths", snapshot.Len())
	return snapshot.Len(), nil
}

// Enqueue resolves the given identifiers and hands the resolved batch to
// every configured backend. Resolution is fail-fast: one bad identifier
// fails the whole call and no backend sees any of the batch. An empty
// identifier list is a no-op.
//
// Success means every backend accepted the batch into its queue, not
// that any upload completed.
func (c *Controller) Enqueue(ctx context.Context, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "workflow.enqueue")
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.AttrRunID, c.runID),
		attribute.Int(telemetry.AttrNumPaths, len(identifiers)),
	)

	paths := make([]store.StorePath, 0, len(identifiers))
	for _, identifier := range identifiers {
		p, err := c.resolver.Resolve(ctx, identifier)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
		paths = append(paths, p)
	}

	err := c.fanOut(ctx, paths)
	telemetry.RecordError(ctx, err)
	return err
}

// Finish diffs the store against the start snapshot, fans the new paths
// out to all backends, drains every backend, and consumes the shutdown
// signal. Enumeration failure aborts before any drain is triggered.
// Backend failures (fan-out or drain) are best-effort collected: every
// backend is still attempted, and the first error is returned alongside
// the report.
func (c *Controller) Finish(ctx context.Context) (FinishReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "workflow.finish")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrRunID, c.runID))

	original := c.session.Snapshot()

	final, err := c.resolver.Enumerate(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return FinishReport{}, err
	}

	created := final.Difference(original)

	report := FinishReport{
		NumOriginalPaths: original.Len(),
		NumFinalPaths:    final.Len(),
		NumNewPaths:      created.Len(),
	}
	span.SetAttributes(
		attribute.Int(telemetry.AttrOriginalPaths, report.NumOriginalPaths),
		attribute.Int(telemetry.AttrFinalPaths, report.NumFinalPaths),
		attribute.Int(telemetry.AttrNewPaths, report.NumNewPaths),
	)

	logger.Info("Workflow finishing",
		"run_id", c.runID,
		"num_original_paths", report.NumOriginalPaths,
		"num_final_paths", report.NumFinalPaths,
		"num_new_paths", report.NumNewPaths)

	var fanOutErr error
	if created.Len() > 0 {
		// Accepted batches still get drained below even if some backend
		// rejected this one.
		fanOutErr = c.fanOut(ctx, created.Sorted())
	}

	reports, drainErr := c.drainAll(ctx)
	report.Reports = reports

	if err := c.session.NotifyShutdown(); err != nil {
		logger.Warn("Shutdown notification not delivered", "run_id", c.runID, "error", err)
	}

	for _, r := range reports {
		logger.Info("Backend drained",
			"run_id", c.runID,
			"backend", r.Backend,
			"uploaded", len(r.Uploaded),
			"skipped", r.Skipped,
			"failed", r.Failed)
	}

	if fanOutErr != nil {
		telemetry.RecordError(ctx, fanOutErr)
		return report, fanOutErr
	}
	if drainErr != nil {
		telemetry.RecordError(ctx, drainErr)
		return report, drainErr
	}

	// Gauges only reflect successful finishes.
	c.metrics.RecordFinishCounts(report.NumOriginalPaths, report.NumFinalPaths, report.NumNewPaths)
	for _, r := range reports {
		c.metrics.RecordDrainReport(r.Backend, len(r.Uploaded), r.Skipped, r.Failed)
	}
	return report, nil
}

// fanOut delivers one resolved batch to every backend concurrently. All
// backends are attempted; the first failure is returned after every
// backend has answered.
func (c *Controller) fanOut(ctx context.Context, paths []store.StorePath) error {
	backends := c.session.Backends()
	if len(backends) == 0 {
		return nil
	}

	start := time.Now()
	var g errgroup.Group
	for _, b := range backends {
		g.Go(func() error {
			ctx, span := telemetry.StartSpan(ctx, "backend.enqueue",
				trace.WithAttributes(telemetry.BackendAttributes(b.Name(), len(paths))...))
			defer span.End()

			if err := b.Enqueue(ctx, paths); err != nil {
				telemetry.RecordError(ctx, err)
				logger.Error("Backend rejected batch",
					"run_id", c.runID,
					"backend", b.Name(),
					"num_paths", len(paths),
					"error", err)
				return err
			}
			c.metrics.RecordEnqueued(b.Name(), len(paths))
			return nil
		})
	}
	err := g.Wait()

	logger.Debug("Batch fan-out complete",
		"run_id", c.runID,
		"num_paths", len(paths),
		"num_backends", len(backends),
		"duration_ms", logger.Duration(start))
	return err
}

// drainAll triggers every backend's shutdown before joining any wait, so
// total drain latency is bounded by the slowest backend rather than the
// sum. Reports come back in backend registration order.
func (c *Controller) drainAll(ctx context.Context) ([]backend.Report, error) {
	backends := c.session.Backends()
	if len(backends) == 0 {
		return nil, nil
	}

	reports := make([]backend.Report, len(backends))
	errs := make([]error, len(backends))

	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b backend.Backend) {
			defer wg.Done()
			ctx, span := telemetry.StartSpan(ctx, "backend.drain",
				trace.WithAttributes(attribute.String(telemetry.AttrBackend, b.Name())))
			defer span.End()

			reports[i], errs[i] = b.Shutdown(ctx)
			span.SetAttributes(
				attribute.Int(telemetry.AttrUploaded, len(reports[i].Uploaded)),
				attribute.Int(telemetry.AttrSkipped, reports[i].Skipped),
				attribute.Int(telemetry.AttrFailed, reports[i].Failed),
			)
			telemetry.RecordError(ctx, errs[i])
		}(i, b)
	}
	wg.Wait()

	var firstErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		logger.Error("Backend drain failed",
			"run_id", c.runID,
			"backend", backends[i].Name(),
			"error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return reports, firstErr
}
