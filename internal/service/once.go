package service

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
	"github.com/and161185/deferlink/internal/repository"
)

// ResolveOnce runs svc only if the install has not resolved before, and
// persists definitive outcomes. force skips the stored-flag check.
//
// Errors:
//   - errs.ErrAlreadyResolved when a previous run settled attribution;
//   - repository failures (the outcome is still returned when resolution ran).
func ResolveOnce(ctx context.Context, svc AttributionService, repo repository.InstallStateRepository, now func() time.Time, force bool) (model.Outcome, error) {
	prev, err := repo.Load(ctx)
	switch {
	case err == nil:
		if prev.Resolved && !force {
			return model.Outcome{}, errs.ErrAlreadyResolved
		}
	case errors.Is(err, errs.ErrNotFound):
	default:
		return model.Outcome{}, err
	}

	out := svc.Resolve(ctx)
	if !out.Definitive() {
		return out, nil
	}
	if now == nil {
		now = time.Now
	}
	if _, err := repo.MarkResolved(ctx, out.Summary(prev.InstallID, now())); err != nil {
		return out, err
	}
	return out, nil
}
