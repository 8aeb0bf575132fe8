// Package repository defines persistence boundaries.
package repository

import (
	"context"

	"github.com/and161185/deferlink/internal/model"
)

// InstallStateRepository stores the per-install "already resolved" flag.
type InstallStateRepository interface {
	// Load returns the stored state or errs.ErrNotFound when nothing was saved yet.
	Load(ctx context.Context) (model.InstallState, error)

	// MarkResolved persists st with Resolved set. A nil InstallID is replaced by
	// the stored one, or a fresh UUID on first save.
	MarkResolved(ctx context.Context, st model.InstallState) (model.InstallState, error)

	// Reset forgets the stored state. Resetting an empty store is not an error.
	Reset(ctx context.Context) error
}
