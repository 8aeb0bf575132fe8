package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestMatchResult_Acceptable(t *testing.T) {
	t.Parallel()

	for _, c := range []Confidence{ConfidenceHigh, ConfidenceMedium} {
		require.True(t, MatchResult{Matched: true, Method: MethodFingerprint, Confidence: c}.Acceptable(), c)
	}
	for _, c := range []Confidence{ConfidenceLow, ConfidenceNone} {
		require.False(t, MatchResult{Matched: true, Method: MethodFingerprint, Confidence: c}.Acceptable(), c)
	}
	for _, c := range []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone} {
		require.True(t, MatchResult{Matched: true, Method: MethodReferrer, Confidence: c}.Acceptable(), c)
	}
	require.False(t, MatchResult{Matched: false, Method: MethodReferrer, Confidence: ConfidenceHigh}.Acceptable())
}

func TestParseConfidence(t *testing.T) {
	t.Parallel()

	require.Equal(t, ConfidenceHigh, ParseConfidence("HIGH"))
	require.Equal(t, ConfidenceMedium, ParseConfidence("medium"))
	require.Equal(t, ConfidenceLow, ParseConfidence("Low"))
	require.Equal(t, ConfidenceNone, ParseConfidence("none"))
	require.Equal(t, ConfidenceNone, ParseConfidence("certain"))
	require.Equal(t, ConfidenceNone, ParseConfidence(""))
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	p, ok := ParsePlatform("Android")
	require.True(t, ok)
	require.Equal(t, PlatformAndroid, p)

	_, ok = ParsePlatform("symbian")
	require.False(t, ok)
}

func TestOutcome_Reason(t *testing.T) {
	t.Parallel()

	res := &MatchResult{Matched: true, DeepLinkURL: "app://x"}
	require.Equal(t, ReasonAccepted, Outcome{Kind: OutcomeAccepted, Result: res}.Reason())
	require.Equal(t, ReasonRejected, Outcome{Kind: OutcomeRejected, Result: res}.Reason())
	require.Equal(t, ReasonExhausted, Outcome{Kind: OutcomeExhausted, Err: errors.New("x")}.Reason())
	require.Equal(t, ReasonNoMatch, Outcome{}.Reason())
	require.Equal(t, ReasonCanceled, Outcome{Err: context.Canceled}.Reason())
	require.Equal(t, ReasonInternalError, Outcome{Err: errors.New("panic")}.Reason())

	require.Equal(t, "app://x", Outcome{Kind: OutcomeAccepted, Result: res}.DeepLinkURL())
	require.Equal(t, "", Outcome{Kind: OutcomeRejected, Result: res}.DeepLinkURL())
	require.False(t, Outcome{Kind: OutcomeAccepted}.Attributed())
}

func TestPlatform_HasInstallReferrer(t *testing.T) {
	t.Parallel()
	require.True(t, PlatformAndroid.HasInstallReferrer())
	require.False(t, PlatformIOS.HasInstallReferrer())
	require.False(t, PlatformWeb.HasInstallReferrer())
}

func TestOutcome_Definitive(t *testing.T) {
	t.Parallel()
	require.True(t, Outcome{Kind: OutcomeAccepted}.Definitive())
	require.True(t, Outcome{Kind: OutcomeRejected}.Definitive())
	require.True(t, Outcome{Kind: OutcomeNoMatch}.Definitive())
	require.False(t, Outcome{Kind: OutcomeNoMatch, Err: context.Canceled}.Definitive())
	require.False(t, Outcome{Kind: OutcomeExhausted, Err: errors.New("x")}.Definitive())
}

func TestOutcome_Summary(t *testing.T) {
	t.Parallel()
	id := uuid.Must(uuid.NewV4())
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.FixedZone("x", 3600))

	res := &MatchResult{Matched: true, Method: MethodFingerprint, Confidence: ConfidenceLow, DeepLinkURL: "app://x", LinkID: "l9"}
	st := Outcome{Kind: OutcomeRejected, Result: res}.Summary(id, at)
	require.Equal(t, id, st.InstallID)
	require.True(t, st.Resolved)
	require.Equal(t, time.UTC, st.ResolvedAt.Location())
	require.Equal(t, ReasonRejected, st.Outcome)
	require.Equal(t, "l9", st.LinkID)
	require.Empty(t, st.DeepLinkURL, "rejected matches do not record a destination")

	st = Outcome{Kind: OutcomeAccepted, Result: res}.Summary(id, at)
	require.Equal(t, "app://x", st.DeepLinkURL)
}
