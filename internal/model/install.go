package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// InstallState is the persisted "this install already resolved once" flag and
// a summary of the outcome that set it.
type InstallState struct {
	InstallID   uuid.UUID `json:"installId"`
	Resolved    bool      `json:"resolved"`
	ResolvedAt  time.Time `json:"resolvedAt"`
	Outcome     string    `json:"outcome,omitempty"`
	DeepLinkURL string    `json:"deepLinkUrl,omitempty"`
	LinkID      string    `json:"linkId,omitempty"`
}

// Definitive reports whether the outcome settles attribution for this install.
// Exhausted, canceled and internal failures may be retried on a later launch.
func (o Outcome) Definitive() bool {
	switch o.Kind {
	case OutcomeAccepted, OutcomeRejected:
		return true
	case OutcomeNoMatch:
		return o.Err == nil
	}
	return false
}

// Summary builds the persisted state for a finished resolution.
func (o Outcome) Summary(installID uuid.UUID, at time.Time) InstallState {
	st := InstallState{
		InstallID:  installID,
		Resolved:   true,
		ResolvedAt: at.UTC(),
		Outcome:    o.Reason(),
	}
	if o.Result != nil {
		st.LinkID = o.Result.LinkID
	}
	st.DeepLinkURL = o.DeepLinkURL()
	return st
}
