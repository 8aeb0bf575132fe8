// Package stub answers link-matching requests from fixtures. It implements no matching logic.
package stub

import (
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/deferlink/internal/crypto"
	"github.com/and161185/deferlink/internal/fixtures"
	"github.com/and161185/deferlink/internal/model"
)

// Reply is a transport-neutral answer.
type Reply struct {
	Status int
	Body   map[string]any
}

// Backend serves fixture responses and tracks per-fixture call counts for failure injection.
type Backend struct {
	set *fixtures.Set
	log *zap.Logger

	mu    sync.Mutex
	calls map[string]int
}

// New constructs a Backend.
func New(set *fixtures.Set, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{set: set, log: log, calls: map[string]int{}}
}

// LookupByReferrer answers a referrer lookup; unknown tokens get 404.
func (b *Backend) LookupByReferrer(token string) Reply {
	r, ok := b.set.Referrer(token)
	if !ok {
		b.log.Debug("unknown referrer", zap.String("token_digest", crypto.TokenDigest(token)))
		return errorReply(http.StatusNotFound)
	}
	return b.answer("referrer:"+token, r)
}

// MatchByFingerprint answers with the first matching rule, or a no-match body.
func (b *Backend) MatchByFingerprint(fp model.DeviceFingerprint) Reply {
	r, idx, ok := b.set.Fingerprint(fp)
	if !ok {
		return b.answer("fingerprint:none", fixtures.NoMatch())
	}
	return b.answer(fmt.Sprintf("fingerprint:%d", idx), r)
}

// Calls returns how many requests hit a fixture key ("referrer:<token>", "fingerprint:<idx>").
func (b *Backend) Calls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func (b *Backend) answer(key string, r fixtures.Response) Reply {
	b.mu.Lock()
	n := b.calls[key]
	b.calls[key] = n + 1
	b.mu.Unlock()

	if n < r.FailFirst {
		return errorReply(http.StatusServiceUnavailable)
	}
	if st := r.StatusCode(); st >= 300 {
		return errorReply(st)
	}
	return Reply{Status: http.StatusOK, Body: r.Body(b.set.Shape)}
}

func errorReply(status int) Reply {
	return Reply{Status: status, Body: map[string]any{"error": http.StatusText(status)}}
}
