// Package transport implements the link-matching backend calls over HTTP and gRPC.
//
// Both transports return the raw JSON response body and classify failures:
// non-2xx responses become *errs.StatusError, everything else is a transport error.
package transport

import (
	"context"

	"github.com/and161185/deferlink/internal/model"
)

// LinkMatcher is the abstract link-matching backend.
type LinkMatcher interface {
	// LookupByReferrer resolves a deterministic install-referrer token.
	LookupByReferrer(ctx context.Context, token string) ([]byte, error)
	// MatchByFingerprint asks the backend for a probabilistic match.
	MatchByFingerprint(ctx context.Context, fp model.DeviceFingerprint) ([]byte, error)
}
