package backend

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mightyiam/magic-nix-cache/internal/logger"
	"github.com/mightyiam/magic-nix-cache/internal/telemetry"
	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// UploadFunc uploads a single store path to a remote sink. Returning
// ErrSkipUpload marks the path as skipped rather than uploaded.
type UploadFunc func(ctx context.Context, path store.StorePath) error

// skipUpload is the sentinel type behind ErrSkipUpload.
type skipUpload struct{}

func (skipUpload) Error() string { return "upload not needed" }

// ErrSkipUpload marks a path as already present remotely; the uploader
// counts it as skipped, not failed.
var ErrSkipUpload error = skipUpload{}

// UploaderConfig configures the queue and worker pool shared by the concrete
// backends.
type UploaderConfig struct {
	// QueueSize is the maximum number of paths pending upload. Default: 1024.
	QueueSize int

	// Workers is the number of concurrent upload workers. Default: 4.
	Workers int
}

// Uploader is the bounded-queue worker pool behind the concrete backends.
//
// Enqueue is accept-into-queue and never blocks: a full queue is an error the
// caller surfaces rather than backpressure on the build. Drain closes intake,
// processes everything still queued, waits for the workers, and reports.
type Uploader struct {
	name    string
	upload  UploadFunc
	queue   chan store.StorePath
	workers int

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu       sync.Mutex
	started  bool
	draining bool
	uploaded []store.StorePath
	skipped  int
	failed   int
	lastErr  error
}

// NewUploader creates an Uploader that uploads paths with fn.
func NewUploader(name string, cfg UploaderConfig, fn UploadFunc) *Uploader {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	return &Uploader{
		name:      name,
		upload:    fn,
		queue:     make(chan store.StorePath, cfg.QueueSize),
		workers:   cfg.Workers,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the worker pool. Calling Start more than once is a no-op.
func (u *Uploader) Start(ctx context.Context) {
	u.mu.Lock()
	if u.started {
		u.mu.Unlock()
		return
	}
	u.started = true
	u.mu.Unlock()

	logger.Info("Starting upload workers", "backend", u.name, "workers", u.workers)

	for i := 0; i < u.workers; i++ {
		u.wg.Add(1)
		go u.worker(ctx)
	}

	go func() {
		u.wg.Wait()
		close(u.stoppedCh)
	}()
}

// Enqueue accepts paths into the queue. It fails with ErrQueueFull when the
// queue cannot hold the batch and with ErrAlreadyShutDown after Drain.
// Paths accepted before the error are still uploaded.
func (u *Uploader) Enqueue(ctx context.Context, paths []store.StorePath) error {
	// The mutex is held across the sends so a concurrent Drain cannot slip
	// between the draining check and the queue writes; a batch accepted here
	// is visible to the workers' final queue pass. The sends never block.
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.draining {
		return &Error{Backend: u.name, Op: "enqueue", Err: ErrAlreadyShutDown}
	}

	for _, p := range paths {
		select {
		case u.queue <- p:
		case <-ctx.Done():
			return &Error{Backend: u.name, Op: "enqueue", Err: ctx.Err()}
		default:
			return &Error{Backend: u.name, Op: "enqueue", Err: ErrQueueFull}
		}
	}
	return nil
}

// Drain closes intake, uploads everything still queued, waits for the worker
// pool, and reports. One-shot: the second call fails with ErrAlreadyShutDown.
func (u *Uploader) Drain(ctx context.Context) (Report, error) {
	u.mu.Lock()
	if u.draining {
		u.mu.Unlock()
		return Report{Backend: u.name}, &Error{Backend: u.name, Op: "shutdown", Err: ErrAlreadyShutDown}
	}
	u.draining = true
	started := u.started
	u.mu.Unlock()

	if started {
		logger.Info("Draining upload queue", "backend", u.name, "queued", len(u.queue))
		close(u.stopCh)

		select {
		case <-u.stoppedCh:
		case <-ctx.Done():
			return u.report(), &Error{Backend: u.name, Op: "shutdown", Err: ctx.Err()}
		}
	} else {
		// Never started: no workers exist, process the queue inline so
		// accepted paths are still uploaded.
		u.drainQueue(ctx)
	}

	report := u.report()
	logger.Info("Upload queue drained",
		"backend", u.name,
		"uploaded", len(report.Uploaded),
		"skipped", report.Skipped,
		"failed", report.Failed,
	)

	u.mu.Lock()
	err := u.lastErr
	u.mu.Unlock()
	if err != nil {
		return report, &Error{Backend: u.name, Op: "shutdown", Err: err}
	}
	return report, nil
}

func (u *Uploader) report() Report {
	u.mu.Lock()
	defer u.mu.Unlock()

	uploaded := make([]store.StorePath, len(u.uploaded))
	copy(uploaded, u.uploaded)
	return Report{
		Backend:  u.name,
		Uploaded: uploaded,
		Skipped:  u.skipped,
		Failed:   u.failed,
	}
}

func (u *Uploader) worker(ctx context.Context) {
	defer u.wg.Done()

	for {
		select {
		case <-u.stopCh:
			u.drainQueue(ctx)
			return
		case <-ctx.Done():
			return
		case p := <-u.queue:
			u.process(ctx, p)
		}
	}
}

// drainQueue uploads the paths still queued at shutdown.
func (u *Uploader) drainQueue(ctx context.Context) {
	for {
		select {
		case p := <-u.queue:
			u.process(ctx, p)
		default:
			return
		}
	}
}

func (u *Uploader) process(ctx context.Context, p store.StorePath) {
	ctx, span := telemetry.StartSpan(ctx, "backend.upload",
		trace.WithAttributes(
			attribute.String(telemetry.AttrBackend, u.name),
			attribute.String(telemetry.AttrStorePath, p.String()),
		))
	defer span.End()

	err := u.upload(ctx, p)
	if err != nil && !errors.Is(err, ErrSkipUpload) {
		telemetry.RecordError(ctx, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case err == nil:
		u.uploaded = append(u.uploaded, p)
	case errors.Is(err, ErrSkipUpload):
		u.skipped++
	default:
		u.failed++
		u.lastErr = err
		logger.Error("Upload failed", "backend", u.name, "path", p, "error", err)
	}
}
