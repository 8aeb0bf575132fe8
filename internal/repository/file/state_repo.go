// Package file implements repository interfaces on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/uuid/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
	"github.com/and161185/deferlink/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StateFileName is the file kept inside the state directory.
const StateFileName = "install_state.json"

// StateRepo implements InstallStateRepository as a single JSON file.
type StateRepo struct {
	path string
	mu   sync.Mutex
}

var _ repository.InstallStateRepository = (*StateRepo)(nil)

// NewStateRepo constructs a repository rooted at dir. The directory is created on first write.
func NewStateRepo(dir string) *StateRepo {
	return &StateRepo{path: filepath.Join(dir, StateFileName)}
}

// DefaultDir returns the per-user state directory (XDG config dir on Linux).
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "deferlink"), nil
}

// Path returns the backing file.
func (r *StateRepo) Path() string { return r.path }

// Load reads the stored state.
func (r *StateRepo) Load(ctx context.Context) (model.InstallState, error) {
	if err := ctx.Err(); err != nil {
		return model.InstallState{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *StateRepo) load() (model.InstallState, error) {
	var st model.InstallState
	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, errs.ErrNotFound
	}
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return model.InstallState{}, fmt.Errorf("%w: %s: %w", errs.ErrMalformed, r.path, err)
	}
	return st, nil
}

// MarkResolved writes st atomically (temp file + rename, mode 0600).
func (r *StateRepo) MarkResolved(ctx context.Context, st model.InstallState) (model.InstallState, error) {
	if err := ctx.Err(); err != nil {
		return model.InstallState{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.InstallID == uuid.Nil {
		if prev, err := r.load(); err == nil && prev.InstallID != uuid.Nil {
			st.InstallID = prev.InstallID
		} else {
			id, err := uuid.NewV4()
			if err != nil {
				return model.InstallState{}, err
			}
			st.InstallID = id
		}
	}
	st.Resolved = true

	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return model.InstallState{}, err
	}
	if err := writeAtomic(r.path, b); err != nil {
		return model.InstallState{}, err
	}
	return st, nil
}

// Reset removes the state file.
func (r *StateRepo) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
