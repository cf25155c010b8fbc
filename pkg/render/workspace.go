package render

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/asyfig/asyfig/pkg/errors"
)

// Workspace is an ephemeral, request-scoped directory that sandboxes one
// render's input and output files. Each request gets its own uniquely named
// directory, so concurrent renders never share state.
type Workspace struct {
	// ID uniquely identifies the request that owns this workspace.
	ID string

	// Path is the absolute directory path.
	Path string

	keep bool
}

// AcquireWorkspace creates a fresh workspace directory under the system
// temporary directory. The name combines the process-unique temp facility
// with a request UUID, so two concurrently active workspaces can never
// collide even across interpreter processes.
func AcquireWorkspace() (*Workspace, error) {
	id := uuid.NewString()
	dir, err := os.MkdirTemp("", "asyfig-"+id[:8]+"-")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkspace, err, "create workspace directory")
	}
	return &Workspace{ID: id, Path: dir}, nil
}

// Join returns the path of name inside the workspace.
func (w *Workspace) Join(name string) string {
	return filepath.Join(w.Path, name)
}

// Retain marks the workspace to survive Release. Used when the caller asked
// to keep intermediate files.
func (w *Workspace) Retain() {
	w.keep = true
}

// Retained reports whether the workspace will survive Release.
func (w *Workspace) Retained() bool {
	return w.keep
}

// Release removes the workspace directory and everything in it, unless the
// workspace was retained. It must be called exactly once per workspace, on
// every exit path; callers defer it immediately after a successful acquire.
func (w *Workspace) Release() error {
	if w.keep {
		return nil
	}
	if err := os.RemoveAll(w.Path); err != nil {
		return errors.Wrap(errors.ErrCodeWorkspace, err, "remove workspace %s", w.Path)
	}
	return nil
}
