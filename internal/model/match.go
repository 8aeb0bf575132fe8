package model

import (
	"strings"
	"time"
)

// Method records which strategy produced a MatchResult.
type Method string

const (
	MethodReferrer    Method = "referrer"
	MethodFingerprint Method = "fingerprint"
)

// Confidence is the backend-assigned bucket summarizing a fingerprint score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// ParseConfidence maps a backend string onto a Confidence; unknown values are ConfidenceNone.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(s)) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	case ConfidenceLow:
		return ConfidenceLow
	}
	return ConfidenceNone
}

// Score bounds as emitted by the backend.
const (
	MinScore = 0
	MaxScore = 130
)

// MatchResult is the canonical attribution result. Only the normalizer builds it.
type MatchResult struct {
	Matched         bool              `json:"matched"`
	Method          Method            `json:"method"`
	Confidence      Confidence        `json:"confidence"`
	Score           int               `json:"score"`
	LinkID          string            `json:"linkId,omitempty"`
	ShortCode       string            `json:"shortCode,omitempty"`
	PlatformMatched string            `json:"platformMatched,omitempty"`
	DeepLinkURL     string            `json:"deepLinkUrl,omitempty"`
	Path            string            `json:"path,omitempty"`
	Params          map[string]string `json:"params,omitempty"`
	AlreadyClaimed  *bool             `json:"alreadyClaimed,omitempty"`
	ClaimedAt       *time.Time        `json:"claimedAt,omitempty"`
	MatchReasons    []string          `json:"matchReasons,omitempty"`
}

// Unmatched returns the zero-value result for a strategy.
func Unmatched(m Method) MatchResult {
	return MatchResult{Method: m, Confidence: ConfidenceNone}
}

// Acceptable reports whether the confidence gate lets this result through.
// Referrer matches are deterministic and always acceptable.
func (r MatchResult) Acceptable() bool {
	if !r.Matched {
		return false
	}
	if r.Method == MethodReferrer {
		return true
	}
	return r.Confidence == ConfidenceHigh || r.Confidence == ConfidenceMedium
}
