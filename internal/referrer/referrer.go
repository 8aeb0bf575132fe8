// Package referrer adapts platform install-referrer queries for the resolver.
package referrer

import (
	"context"
	"strings"
	"sync"
)

// Source yields the deterministic attribution token recorded by the OS at install time.
// ok=false means no token is available for this install.
type Source interface {
	ReferrerToken(ctx context.Context) (token string, ok bool, err error)
}

// Consumer is implemented by sources that can forget their token once it has been used.
type Consumer interface {
	Consume()
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, bool, error)

func (f SourceFunc) ReferrerToken(ctx context.Context) (string, bool, error) { return f(ctx) }

// Static serves a fixed token; the empty string means "no token".
type Static string

func (s Static) ReferrerToken(context.Context) (string, bool, error) {
	t := strings.TrimSpace(string(s))
	return t, t != "", nil
}

// Once queries the wrapped source at most once per process and replays the
// result. After Consume it reports no token.
type Once struct {
	src Source

	once  sync.Once
	token string
	ok    bool
	err   error

	mu       sync.Mutex
	consumed bool
}

var (
	_ Source   = (*Once)(nil)
	_ Consumer = (*Once)(nil)
)

// NewOnce wraps src.
func NewOnce(src Source) *Once { return &Once{src: src} }

// ReferrerToken returns the cached result of the first query.
func (o *Once) ReferrerToken(ctx context.Context) (string, bool, error) {
	o.once.Do(func() {
		o.token, o.ok, o.err = o.src.ReferrerToken(ctx)
		o.token = strings.TrimSpace(o.token)
		if o.token == "" {
			o.ok = false
		}
	})
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.consumed {
		return "", false, nil
	}
	return o.token, o.ok, o.err
}

// Consume clears the token for the rest of the process lifetime.
func (o *Once) Consume() {
	o.mu.Lock()
	o.consumed = true
	o.mu.Unlock()
}
