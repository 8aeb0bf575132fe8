// Package fixtures loads the canned link-matching responses served by the stub backend.
package fixtures

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
)

// Response shapes.
const (
	ShapeWrapped = "wrapped"
	ShapeFlat    = "flat"
)

// Response is one canned answer.
type Response struct {
	// Status is the HTTP status to answer with; 0 means 200.
	Status int `yaml:"status"`
	// Shape overrides the set default (wrapped|flat).
	Shape string `yaml:"shape"`
	// Match is the payload; nil means "no match".
	Match map[string]any `yaml:"match"`
	// FailFirst answers the first N calls with 503 to exercise client retries.
	FailFirst int `yaml:"failFirst"`
}

// FingerprintRule answers fingerprint requests whose non-empty selectors all match.
type FingerprintRule struct {
	Platform string `yaml:"platform"`
	Locale   string `yaml:"locale"`
	Model    string `yaml:"model"`
	Response `yaml:",inline"`
}

// Set is a complete fixture file.
type Set struct {
	Shape        string              `yaml:"shape"`
	Referrers    map[string]Response `yaml:"referrers"`
	Fingerprints []FingerprintRule   `yaml:"fingerprints"`
}

// Load reads and validates a fixture file.
func Load(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes and validates fixture YAML.
func Parse(b []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("fixtures: %w", err)
	}
	if s.Shape == "" {
		s.Shape = ShapeWrapped
	}
	if err := validShape(s.Shape); err != nil {
		return nil, err
	}
	for tok, r := range s.Referrers {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("fixtures: referrer %q: %w", tok, err)
		}
	}
	for i, r := range s.Fingerprints {
		if r.Platform != "" {
			if _, ok := model.ParsePlatform(r.Platform); !ok {
				return nil, fmt.Errorf("fixtures: fingerprint[%d]: %w: platform %q", i, errs.ErrMalformed, r.Platform)
			}
		}
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("fixtures: fingerprint[%d]: %w", i, err)
		}
	}
	return &s, nil
}

func validShape(s string) error {
	if s != ShapeWrapped && s != ShapeFlat {
		return fmt.Errorf("%w: shape %q", errs.ErrMalformed, s)
	}
	return nil
}

func (r Response) validate() error {
	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		return fmt.Errorf("%w: status %d", errs.ErrMalformed, r.Status)
	}
	if r.FailFirst < 0 {
		return fmt.Errorf("%w: failFirst %d", errs.ErrMalformed, r.FailFirst)
	}
	if r.Shape != "" {
		return validShape(r.Shape)
	}
	return nil
}

// Referrer returns the canned response for token.
func (s *Set) Referrer(token string) (Response, bool) {
	r, ok := s.Referrers[token]
	return r, ok
}

// Fingerprint returns the first rule matching fp and its index.
func (s *Set) Fingerprint(fp model.DeviceFingerprint) (Response, int, bool) {
	for i, r := range s.Fingerprints {
		if sel(r.Platform, string(fp.Platform)) && sel(r.Locale, fp.Locale) && sel(r.Model, fp.Model) {
			return r.Response, i, true
		}
	}
	return Response{}, -1, false
}

func sel(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}

// StatusCode returns the effective HTTP status.
func (r Response) StatusCode() int {
	if r.Status == 0 {
		return 200
	}
	return r.Status
}

// Body renders the wire payload in the response's (or the default) shape.
func (r Response) Body(defaultShape string) map[string]any {
	shape := r.Shape
	if shape == "" {
		shape = defaultShape
	}
	if shape == ShapeFlat {
		if r.Match == nil {
			return map[string]any{"found": false}
		}
		out := make(map[string]any, len(r.Match))
		for k, v := range r.Match {
			out[k] = v
		}
		return out
	}
	if r.Match == nil {
		return map[string]any{"success": true, "match": nil}
	}
	return map[string]any{"success": true, "match": r.Match}
}

// NoMatch is the answer for a fingerprint no rule covers.
func NoMatch() Response { return Response{} }
