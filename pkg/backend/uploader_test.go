package backend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

func TestUploader_EnqueueAndDrain(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var seen []store.StorePath
	u := NewUploader("test", UploaderConfig{Workers: 2}, func(_ context.Context, p store.StorePath) error {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
		return nil
	})
	u.Start(ctx)

	paths := []store.StorePath{"/nix/store/aaa", "/nix/store/bbb", "/nix/store/ccc"}
	if err := u.Enqueue(ctx, paths); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	report, err := u.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(report.Uploaded) != 3 {
		t.Errorf("report.Uploaded has %d paths, want 3", len(report.Uploaded))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Errorf("upload func saw %d paths, want 3", len(seen))
	}
}

func TestUploader_DrainIsOneShot(t *testing.T) {
	ctx := context.Background()
	u := NewUploader("test", UploaderConfig{}, func(context.Context, store.StorePath) error {
		return nil
	})
	u.Start(ctx)

	if _, err := u.Drain(ctx); err != nil {
		t.Fatalf("first Drain failed: %v", err)
	}

	_, err := u.Drain(ctx)
	if !errors.Is(err, ErrAlreadyShutDown) {
		t.Errorf("second Drain returned %v, want ErrAlreadyShutDown", err)
	}
}

func TestUploader_EnqueueAfterDrain(t *testing.T) {
	ctx := context.Background()
	u := NewUploader("test", UploaderConfig{}, func(context.Context, store.StorePath) error {
		return nil
	})
	u.Start(ctx)

	if _, err := u.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	err := u.Enqueue(ctx, []store.StorePath{"/nix/store/aaa"})
	if !errors.Is(err, ErrAlreadyShutDown) {
		t.Errorf("Enqueue after Drain returned %v, want ErrAlreadyShutDown", err)
	}
}

func TestUploader_QueueFull(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	u := NewUploader("test", UploaderConfig{QueueSize: 1, Workers: 1}, func(context.Context, store.StorePath) error {
		<-block
		return nil
	})
	u.Start(ctx)
	defer close(block)

	// First path is taken by the (blocked) worker, second fills the queue.
	// Keep enqueueing until the bounded queue rejects.
	var err error
	for i := 0; i < 8; i++ {
		err = u.Enqueue(ctx, []store.StorePath{"/nix/store/aaa"})
		if err != nil {
			break
		}
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue on full queue returned %v, want ErrQueueFull", err)
	}
}

func TestUploader_FailedUploadReported(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("remote rejected upload")
	u := NewUploader("test", UploaderConfig{}, func(_ context.Context, p store.StorePath) error {
		if p == "/nix/store/bad" {
			return cause
		}
		return nil
	})
	u.Start(ctx)

	if err := u.Enqueue(ctx, []store.StorePath{"/nix/store/good", "/nix/store/bad"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	report, err := u.Drain(ctx)
	if !errors.Is(err, cause) {
		t.Errorf("Drain returned %v, want wrapped upload error", err)
	}
	if report.Failed != 1 {
		t.Errorf("report.Failed = %d, want 1", report.Failed)
	}
	if len(report.Uploaded) != 1 {
		t.Errorf("report.Uploaded has %d paths, want 1", len(report.Uploaded))
	}
}

func TestUploader_SkippedUploads(t *testing.T) {
	ctx := context.Background()
	u := NewUploader("test", UploaderConfig{}, func(context.Context, store.StorePath) error {
		return ErrSkipUpload
	})
	u.Start(ctx)

	if err := u.Enqueue(ctx, []store.StorePath{"/nix/store/aaa", "/nix/store/bbb"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	report, err := u.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if report.Skipped != 2 {
		t.Errorf("report.Skipped = %d, want 2", report.Skipped)
	}
	if len(report.Uploaded) != 0 {
		t.Errorf("report.Uploaded has %d paths, want 0", len(report.Uploaded))
	}
}

func TestUploader_EnqueueDrainRace(t *testing.T) {
	// An accepted batch must never be lost: every path Enqueue said yes to
	// shows up in the drain report, even when Drain runs concurrently.
	for i := 0; i < 50; i++ {
		ctx := context.Background()
		u := NewUploader("test", UploaderConfig{Workers: 2}, func(context.Context, store.StorePath) error {
			return nil
		})
		u.Start(ctx)

		var accepted int
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := u.Enqueue(ctx, []store.StorePath{"/nix/store/aaa", "/nix/store/bbb"}); err == nil {
				accepted = 2
			}
		}()

		report, err := u.Drain(ctx)
		if err != nil {
			t.Fatalf("Drain failed: %v", err)
		}
		<-done

		got := len(report.Uploaded) + report.Skipped + report.Failed
		if got != accepted {
			t.Fatalf("drain report covers %d paths, want %d (accepted batch dropped)", got, accepted)
		}
	}
}

func TestUploader_DrainWithoutStart(t *testing.T) {
	ctx := context.Background()
	var uploaded int
	var mu sync.Mutex
	u := NewUploader("test", UploaderConfig{}, func(context.Context, store.StorePath) error {
		mu.Lock()
		uploaded++
		mu.Unlock()
		return nil
	})

	if err := u.Enqueue(ctx, []store.StorePath{"/nix/store/aaa"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	report, err := u.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(report.Uploaded) != 1 {
		t.Errorf("report.Uploaded has %d paths, want 1", len(report.Uploaded))
	}
}
