// Package testutil provides utilities for testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// Day is the unit the retention sweep measures age in.
const Day = 24 * time.Hour

// ZipArchive builds an in-memory zip archive from a map of entry name to
// content. Names ending in "/" become directory entries. Entries are
// written in sorted order.
func ZipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("failed to write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip archive: %v", err)
	}

	return buf.Bytes()
}

// ZipSymlink builds a zip archive holding a single symlink entry.
func ZipSymlink(t *testing.T, name, target string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	header := &zip.FileHeader{Name: name, Method: zip.Store}
	header.SetMode(os.ModeSymlink | 0o777)
	w, err := zw.CreateHeader(header)
	if err != nil {
		t.Fatalf("failed to add symlink entry %s: %v", name, err)
	}
	if _, err := w.Write([]byte(target)); err != nil {
		t.Fatalf("failed to write symlink entry %s: %v", name, err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip archive: %v", err)
	}

	return buf.Bytes()
}

// AgedDir creates dir (and parents) and sets its modification time to age
// in the past. It returns dir.
func AgedDir(t *testing.T, dir string, age time.Duration) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	SetAge(t, dir, age)
	return dir
}

// SetAge sets the modification time of path to age in the past.
func SetAge(t *testing.T, path string, age time.Duration) {
	t.Helper()

	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("failed to set times on %s: %v", path, err)
	}
}

// TempFile creates a file with content under a test temp directory.
// Returns the full path to the file.
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write temp file %s: %v", name, err)
	}

	return path
}

// WriteFile writes content to root/rel, creating parents.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()

	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
	return path
}

// ReadTree returns every regular file under root keyed by slash-separated
// relative path. A missing root yields an empty map.
func ReadTree(t *testing.T, root string) map[string]string {
	t.Helper()

	tree := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read tree %s: %v", root, err)
	}
	return tree
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
