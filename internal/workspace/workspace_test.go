package workspace

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestAcquireCreatesDirectory(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())

	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()

	info, err := os.Stat(h.Dir())
	if err != nil {
		t.Fatalf("stat workspace dir: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %s to be a directory", h.Dir())
	}
}

func TestAcquireHandlesAreDistinct(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())

	a, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer a.Release()

	b, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	defer b.Release()

	if a.Dir() == b.Dir() {
		t.Fatalf("expected distinct workspaces, both got %s", a.Dir())
	}
}

func TestReleaseRemovesAllFiles(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, testLogger())

	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := os.WriteFile(h.Path("upload.png"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("write staged file: %v", err)
	}

	h.Release()

	if _, err := os.Stat(h.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected workspace to be removed, stat err=%v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty root after release, found %d entries", len(entries))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())

	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	h.Release()
	h.Release()
}

func TestPathStripsDirectoryComponents(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())

	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()

	got := h.Path("../../etc/passwd")
	if filepath.Dir(got) != h.Dir() {
		t.Fatalf("expected path inside workspace, got %s", got)
	}
	if filepath.Base(got) != "passwd" {
		t.Fatalf("expected base name passwd, got %s", filepath.Base(got))
	}
}

func TestAcquireHonorsCancelledContext(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Acquire(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
