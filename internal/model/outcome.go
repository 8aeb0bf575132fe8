package model

import (
	"context"
	"errors"
)

// OutcomeKind classifies a resolution run.
type OutcomeKind int

const (
	// OutcomeNoMatch: the backend found nothing, or the run was aborted before a match.
	OutcomeNoMatch OutcomeKind = iota
	// OutcomeAccepted: a match passed the confidence gate.
	OutcomeAccepted
	// OutcomeRejected: a fingerprint match was found but its confidence was too low.
	OutcomeRejected
	// OutcomeExhausted: every attempt failed with retryable errors.
	OutcomeExhausted
)

// Outcome reasons used in logs, metrics labels and CLI output.
const (
	ReasonAccepted      = "accepted"
	ReasonNoMatch       = "no_match"
	ReasonRejected      = "rejected_low_confidence"
	ReasonExhausted     = "exhausted"
	ReasonCanceled      = "canceled"
	ReasonInternalError = "internal_error"
)

// Outcome is what the resolver hands to the application layer.
// Result is set for accepted and rejected outcomes; Err is set for
// exhausted, canceled and internal failures.
type Outcome struct {
	Kind   OutcomeKind
	Result *MatchResult
	Err    error
}

// Attributed reports whether the application should act on Result.
func (o Outcome) Attributed() bool {
	return o.Kind == OutcomeAccepted && o.Result != nil
}

// DeepLinkURL returns the destination to navigate to, or "" for the default experience.
func (o Outcome) DeepLinkURL() string {
	if !o.Attributed() {
		return ""
	}
	return o.Result.DeepLinkURL
}

// Reason returns a stable label for the outcome.
func (o Outcome) Reason() string {
	switch o.Kind {
	case OutcomeAccepted:
		return ReasonAccepted
	case OutcomeRejected:
		return ReasonRejected
	case OutcomeExhausted:
		return ReasonExhausted
	}
	switch {
	case o.Err == nil:
		return ReasonNoMatch
	case errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonInternalError
	}
}
