// Package nix implements store.Resolver against a local Nix store.
//
// Identifiers are resolved with `nix-store --query --resolve`, which follows
// symlinked identifiers (e.g. ./result) to their canonical /nix/store path.
// Enumeration lists the immediate children of the store directory, which is
// how the store defines "all paths present".
//
// The nix-store binary is resolved from PATH first, then from the standard
// Determinate Nix profile directory, which is outside PATH by default.
package nix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

const (
	// defaultStoreDir is the standard Nix store root.
	defaultStoreDir = "/nix/store"

	// determinateProfileBin is where Determinate Nix installs its binaries.
	determinateProfileBin = "/nix/var/nix/profiles/default/bin"
)

// Resolver resolves identifiers and enumerates paths using the nix-store CLI.
type Resolver struct {
	binary   string // absolute path to nix-store, resolved at construction
	storeDir string
}

// Options configures the Resolver.
type Options struct {
	// Binary is the nix-store binary to use. Empty means resolve from PATH
	// with a Determinate Nix profile fallback.
	Binary string

	// StoreDir is the store root directory. Default: /nix/store.
	StoreDir string
}

// New creates a Resolver, resolving the nix-store binary up front so a
// missing Nix installation fails at startup rather than mid-session.
func New(opts Options) (*Resolver, error) {
	binary := opts.Binary
	if binary == "" {
		found, err := findBinary("nix-store")
		if err != nil {
			return nil, err
		}
		binary = found
	}

	storeDir := opts.StoreDir
	if storeDir == "" {
		storeDir = defaultStoreDir
	}

	return &Resolver{binary: binary, storeDir: storeDir}, nil
}

// Resolve follows the identifier to its canonical store path.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (store.StorePath, error) {
	out, err := r.run(ctx, "--query", "--resolve", identifier)
	if err != nil {
		return "", &store.ResolutionError{Identifier: identifier, Err: err}
	}

	resolved := strings.TrimSpace(out)
	if !strings.HasPrefix(resolved, r.storeDir+string(os.PathSeparator)) {
		return "", &store.ResolutionError{
			Identifier: identifier,
			Err:        fmt.Errorf("resolved to %q, which is outside %s", resolved, r.storeDir),
		}
	}

	return store.StorePath(resolved), nil
}

// Enumerate lists every path currently present in the store root.
//
// Direct children of the store directory are the canonical store paths;
// auxiliary entries (the .links directory of an optimised store, lock and
// temp files) are skipped.
func (r *Resolver) Enumerate(ctx context.Context) (store.PathSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, &store.EnumerationError{Err: err}
	}

	entries, err := os.ReadDir(r.storeDir)
	if err != nil {
		return nil, &store.EnumerationError{Err: err}
	}

	paths := store.NewPathSet()
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".lock") {
			continue
		}
		paths.Add(store.StorePath(filepath.Join(r.storeDir, name)))
	}

	return paths, nil
}

// run executes nix-store with the given arguments and returns stdout.
// Stderr is captured and folded into the error (nix writes its diagnostics
// to stderr).
func (r *Resolver) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrText := strings.TrimSpace(stderr.String())
		if stderrText != "" {
			return "", fmt.Errorf("nix-store %s: %w: %s", strings.Join(args, " "), err, stderrText)
		}
		return "", fmt.Errorf("nix-store %s: %w", strings.Join(args, " "), err)
	}

	return stdout.String(), nil
}

// findBinary resolves a Nix binary by name, checking PATH first and then the
// Determinate Nix installation directory.
func findBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	determinatePath := filepath.Join(determinateProfileBin, name)
	if _, err := os.Stat(determinatePath); err == nil {
		return determinatePath, nil
	}

	return "", fmt.Errorf("%s not found on PATH or at %s", name, determinatePath)
}
