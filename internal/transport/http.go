package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/and161185/deferlink/internal/convert"
	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultHTTPTimeout is the outer client timeout; the retry controller's per-attempt budget is tighter.
const DefaultHTTPTimeout = 30 * time.Second

const (
	maxBodyBytes  = 1 << 20
	maxErrSnippet = 256
	// HeaderRequestID carries a per-request UUID for backend log correlation.
	HeaderRequestID = "X-Request-Id"
)

// HTTP calls the JSON link-matching API.
type HTTP struct {
	base   *url.URL
	apiKey string
	hc     *http.Client
	log    *zap.Logger
}

var _ LinkMatcher = (*HTTP)(nil)

// HTTPOption configures HTTP.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(h *HTTP) {
		if hc != nil {
			h.hc = hc
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(log *zap.Logger) HTTPOption {
	return func(h *HTTP) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHTTPClient returns a client with the outer request timeout; zero uses DefaultHTTPTimeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewHTTP constructs an HTTP transport for baseURL authenticated with apiKey.
func NewHTTP(baseURL, apiKey string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", errs.ErrMalformed, baseURL)
	}
	h := &HTTP{
		base:   u,
		apiKey: apiKey,
		hc:     NewHTTPClient(DefaultHTTPTimeout),
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// LookupByReferrer POSTs the token to the referrer route.
func (h *HTTP) LookupByReferrer(ctx context.Context, token string) ([]byte, error) {
	return h.post(ctx, convert.PathReferrer, convert.ReferrerRequest(token))
}

// MatchByFingerprint POSTs the fingerprint to the fingerprint route.
func (h *HTTP) MatchByFingerprint(ctx context.Context, fp model.DeviceFingerprint) ([]byte, error) {
	return h.post(ctx, convert.PathFingerprint, convert.FingerprintRequest(fp))
}

func (h *HTTP) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	endpoint := h.base.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	reqID := uuid.Must(uuid.NewV4()).String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, reqID)
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	start := time.Now()
	resp, err := h.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	h.log.Debug("link-matching call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID),
		zap.Duration("dur", time.Since(start)),
	)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errs.StatusError{Code: resp.StatusCode, Body: snippet(b)}
	}
	if len(b) > maxBodyBytes {
		return nil, fmt.Errorf("%w: %s response exceeds %d bytes", errs.ErrMalformed, path, maxBodyBytes)
	}
	return b, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrSnippet {
		s = s[:maxErrSnippet]
	}
	return s
}
