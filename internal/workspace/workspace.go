// Package workspace manages the private, request-scoped directories that
// stage intermediate media files. A handle is exclusively owned by the
// request that acquired it and every file inside it becomes unreachable
// once the handle is released.
package workspace

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type Manager struct {
	root   string
	logger *log.Logger
}

func NewManager(root string, logger *log.Logger) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	return &Manager{root: root, logger: logger}
}

// Handle is one acquired workspace directory.
type Handle struct {
	dir     string
	logger  *log.Logger
	removed bool
}

// Acquire creates a uniquely named directory under the manager root.
// os.MkdirTemp retries on collision, so concurrent acquisitions never
// share a handle.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	dir, err := os.MkdirTemp(m.root, "qrforge-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Handle{dir: dir, logger: m.logger}, nil
}

func (h *Handle) Dir() string {
	return h.dir
}

// Path returns the workspace-scoped location for name. The base name is
// taken so a hostile declared filename cannot escape the directory.
func (h *Handle) Path(name string) string {
	return filepath.Join(h.dir, filepath.Base(name))
}

// Release recursively deletes the workspace. Deletion failure is logged
// and swallowed: the OS temp reaper is the backstop, and an
// already-computed result must never be blocked on cleanup. Safe to call
// more than once.
func (h *Handle) Release() {
	if h == nil || h.removed {
		return
	}
	h.removed = true

	if err := os.RemoveAll(h.dir); err != nil {
		if h.logger != nil {
			h.logger.Printf("workspace release failed dir=%s err=%v", h.dir, err)
		}
		return
	}
}
