package backend

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/mightyiam/magic-nix-cache/pkg/store"
)

func TestArchivePath_Directory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "abc123-artifact")
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0755); err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bin", "tool"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.Symlink("bin/tool", filepath.Join(dir, "default")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	data, err := ArchivePath(store.StorePath(dir))
	if err != nil {
		t.Fatalf("ArchivePath failed: %v", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("archive is not valid gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	names := map[string]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("archive is not valid tar: %v", err)
		}
		names[hdr.Name] = hdr.Typeflag
	}

	if names["abc123-artifact/bin/tool"] != tar.TypeReg {
		t.Errorf("regular file missing or wrong type: %v", names)
	}
	if names["abc123-artifact/default"] != tar.TypeSymlink {
		t.Errorf("symlink missing or wrong type: %v", names)
	}
}

func TestArchivePath_SingleFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "abc123-script")
	if err := os.WriteFile(file, []byte("echo hi\n"), 0755); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	data, err := ArchivePath(store.StorePath(file))
	if err != nil {
		t.Fatalf("ArchivePath failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("ArchivePath returned an empty archive")
	}
}

func TestArchivePath_Missing(t *testing.T) {
	_, err := ArchivePath(store.StorePath(filepath.Join(t.TempDir(), "gone")))
	if err == nil {
		t.Error("ArchivePath succeeded for a missing path")
	}
}
