package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

func TestResolver_ResolveKnownPath(t *testing.T) {
	ctx := context.Background()
	r := NewResolver("/nix/store/aaa-one")

	p, err := r.Resolve(ctx, "/nix/store/aaa-one")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p != "/nix/store/aaa-one" {
		t.Errorf("Resolve returned %q, want /nix/store/aaa-one", p)
	}
}

func TestResolver_ResolveAlias(t *testing.T) {
	ctx := context.Background()
	r := NewResolver("/nix/store/aaa-one")
	r.AddAlias("./result", "/nix/store/aaa-one")

	p, err := r.Resolve(ctx, "./result")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p != "/nix/store/aaa-one" {
		t.Errorf("Resolve returned %q, want /nix/store/aaa-one", p)
	}
}

func TestResolver_ResolveUnknown(t *testing.T) {
	ctx := context.Background()
	r := NewResolver()

	_, err := r.Resolve(ctx, "/nix/store/zzz-missing")
	if err == nil {
		t.Fatal("Resolve succeeded for unknown identifier")
	}
	if !store.IsResolutionError(err) {
		t.Errorf("Resolve returned %T, want *store.ResolutionError", err)
	}

	var re *store.ResolutionError
	if errors.As(err, &re) && re.Identifier != "/nix/store/zzz-missing" {
		t.Errorf("ResolutionError names %q, want the failing identifier", re.Identifier)
	}
}

func TestResolver_EnumerateReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r := NewResolver("/nix/store/aaa-one")

	first, err := r.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	r.AddPath("/nix/store/bbb-two")

	if first.Len() != 1 {
		t.Errorf("earlier snapshot grew to %d paths after AddPath", first.Len())
	}

	second, err := r.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if second.Len() != 2 {
		t.Errorf("Enumerate returned %d paths, want 2", second.Len())
	}
}

func TestResolver_FailEnumeration(t *testing.T) {
	ctx := context.Background()
	r := NewResolver("/nix/store/aaa-one")
	cause := errors.New("store offline")
	r.FailEnumeration(cause)

	_, err := r.Enumerate(ctx)
	if !store.IsEnumerationError(err) {
		t.Fatalf("Enumerate returned %v, want an EnumerationError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("EnumerationError does not wrap the injected cause")
	}

	// Failure is one-shot
	if _, err := r.Enumerate(ctx); err != nil {
		t.Errorf("second Enumerate failed: %v", err)
	}
}
