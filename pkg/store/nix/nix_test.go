package nix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

// writeStubBinary writes an executable shell script that prints the given
// line, standing in for nix-store.
func writeStubBinary(t *testing.T, output string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nix-store")
	script := fmt.Sprintf("#!/bin/sh\necho %q\n", output)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write stub binary: %v", err)
	}
	return path
}

func TestResolver_Enumerate(t *testing.T) {
	ctx := context.Background()
	storeDir := t.TempDir()

	for _, name := range []string{"aaa-one", "bbb-two"} {
		if err := os.Mkdir(filepath.Join(storeDir, name), 0755); err != nil {
			t.Fatalf("failed to create store entry: %v", err)
		}
	}
	// Auxiliary entries that must not count as store paths
	if err := os.Mkdir(filepath.Join(storeDir, ".links"), 0755); err != nil {
		t.Fatalf("failed to create .links: %v", err)
	}
	if err := os.WriteFile(filepath.Join(storeDir, "aaa-one.lock"), nil, 0644); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	r, err := New(Options{Binary: "/bin/true", StoreDir: storeDir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	paths, err := r.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	if paths.Len() != 2 {
		t.Fatalf("Enumerate returned %d paths, want 2: %v", paths.Len(), paths.Sorted())
	}
	for _, name := range []string{"aaa-one", "bbb-two"} {
		if !paths.Contains(store.StorePath(filepath.Join(storeDir, name))) {
			t.Errorf("Enumerate missing %s", name)
		}
	}
}

func TestResolver_EnumerateMissingStore(t *testing.T) {
	ctx := context.Background()
	r, err := New(Options{Binary: "/bin/true", StoreDir: filepath.Join(t.TempDir(), "does-not-exist")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = r.Enumerate(ctx)
	if !store.IsEnumerationError(err) {
		t.Errorf("Enumerate returned %v, want an EnumerationError", err)
	}
}

func TestResolver_ResolveTrimsOutput(t *testing.T) {
	ctx := context.Background()
	storeDir := t.TempDir()
	canonical := filepath.Join(storeDir, "aaa-one")

	binary := writeStubBinary(t, canonical)
	r, err := New(Options{Binary: binary, StoreDir: storeDir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	p, err := r.Resolve(ctx, "./result")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p != store.StorePath(canonical) {
		t.Errorf("Resolve returned %q, want %q", p, canonical)
	}
}

func TestResolver_ResolveRejectsPathsOutsideStore(t *testing.T) {
	ctx := context.Background()
	binary := writeStubBinary(t, "/tmp/not-a-store-path")
	r, err := New(Options{Binary: binary, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = r.Resolve(ctx, "/tmp/not-a-store-path")
	if !store.IsResolutionError(err) {
		t.Errorf("Resolve returned %v, want a ResolutionError", err)
	}
}

func TestResolver_ResolveCommandFailure(t *testing.T) {
	ctx := context.Background()
	r, err := New(Options{Binary: "/bin/false", StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = r.Resolve(ctx, "nonexistent")
	if !store.IsResolutionError(err) {
		t.Errorf("Resolve returned %v, want a ResolutionError", err)
	}
}
