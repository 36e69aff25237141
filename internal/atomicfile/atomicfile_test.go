package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func assertFileContent(t *testing.T, path string, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile('%s') failed with '%s'", path, err)
	}
	if string(got) != want {
		t.Fatalf("path: '%s', expected content: %q, got: %q", path, want, got)
	}
}

func assertOnlyFile(t *testing.T, dir string, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("os.ReadDir failed with '%s'", err)
	}
	if len(entries) != 1 || entries[0].Name() != name {
		t.Fatalf("expected only '%s' in dir, got %v", name, entries)
	}
}

func TestAtomicFile(t *testing.T) {
	t.Run("Close replaces the destination", func(t *testing.T) {
		dir := t.TempDir()
		dst := filepath.Join(dir, "db")
		if err := os.WriteFile(dst, []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}

		f, err := New(dst)
		if err != nil {
			t.Fatalf("New() error: %s", err)
		}
		if _, err := f.Write([]byte("new content")); err != nil {
			t.Fatalf("Write() error: %s", err)
		}
		if f.Size() != int64(len("new content")) {
			t.Errorf("Size() = %d", f.Size())
		}
		assertFileContent(t, dst, "old")

		if err := f.Close(); err != nil {
			t.Fatalf("Close() error: %s", err)
		}
		assertFileContent(t, dst, "new content")
		assertOnlyFile(t, dir, "db")

		if err := f.Close(); err != nil {
			t.Errorf("second Close() = %s", err)
		}
	})

	t.Run("Cancel keeps the destination", func(t *testing.T) {
		dir := t.TempDir()
		dst := filepath.Join(dir, "db")
		if err := os.WriteFile(dst, []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}

		f, err := New(dst)
		if err != nil {
			t.Fatalf("New() error: %s", err)
		}
		f.Write([]byte("discarded"))
		f.Cancel()

		assertFileContent(t, dst, "old")
		assertOnlyFile(t, dir, "db")

		if _, err := f.Write([]byte("x")); !errors.Is(err, ErrCancelled) {
			t.Errorf("Write() after Cancel = %v, want ErrCancelled", err)
		}
		if err := f.Close(); !errors.Is(err, ErrCancelled) {
			t.Errorf("Close() after Cancel = %v, want ErrCancelled", err)
		}
	})

	t.Run("New rejects a directory path", func(t *testing.T) {
		if _, err := New(t.TempDir() + string(os.PathSeparator)); err == nil {
			t.Fatal("expected an error")
		}
	})
}
