package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
)

const sample = `
shape: wrapped
referrers:
  tok-1:
    match:
      linkId: l1
      deepLinkData:
        deepLinkUrl: app://product/123
        path: /product/123
        params: {ref: x}
  tok-flaky:
    failFirst: 1
    shape: flat
    match:
      found: true
      deepLinkData: {deepLinkUrl: "app://promo"}
  tok-gone:
    status: 410
fingerprints:
  - platform: ios
    locale: en-US
    match: {found: true, confidence: high, score: 98, deepLinkData: {deepLinkUrl: "app://ios"}}
  - platform: android
    match: {found: true, confidence: low, score: 60}
`

func TestParse_Sample(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, ShapeWrapped, s.Shape)

	r, ok := s.Referrer("tok-1")
	require.True(t, ok)
	require.Equal(t, 200, r.StatusCode())
	body := r.Body(s.Shape)
	require.Equal(t, true, body["success"])
	match := body["match"].(map[string]any)
	require.Equal(t, "l1", match["linkId"])

	r, _ = s.Referrer("tok-flaky")
	require.Equal(t, 1, r.FailFirst)
	require.Equal(t, true, r.Body(s.Shape)["found"])

	r, _ = s.Referrer("tok-gone")
	require.Equal(t, 410, r.StatusCode())

	_, ok = s.Referrer("nope")
	require.False(t, ok)
}

func TestSet_FingerprintSelectors(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(sample))
	require.NoError(t, err)

	_, idx, ok := s.Fingerprint(model.DeviceFingerprint{Platform: model.PlatformIOS, Locale: "en-us"})
	require.True(t, ok)
	require.Equal(t, 0, idx)

	_, _, ok = s.Fingerprint(model.DeviceFingerprint{Platform: model.PlatformIOS, Locale: "de-DE"})
	require.False(t, ok)

	r, idx, ok := s.Fingerprint(model.DeviceFingerprint{Platform: model.PlatformAndroid, Locale: "de-DE"})
	require.True(t, ok)
	require.Equal(t, 1, idx)
	require.Equal(t, "low", r.Match["confidence"])
}

func TestResponse_BodyShapes(t *testing.T) {
	t.Parallel()

	none := NoMatch()
	require.Equal(t, map[string]any{"success": true, "match": nil}, none.Body(ShapeWrapped))
	require.Equal(t, map[string]any{"found": false}, none.Body(ShapeFlat))

	r := Response{Match: map[string]any{"found": true}}
	flat := r.Body(ShapeFlat)
	flat["found"] = false
	require.Equal(t, true, r.Match["found"], "flat body must not alias the fixture")
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	bad := []string{
		"shape: sideways",
		"referrers: {a: {status: 1000}}",
		"referrers: {a: {failFirst: -1}}",
		"referrers: {a: {shape: round}}",
		"fingerprints: [{platform: palm}]",
		"referrers: [1, 2]",
	}
	for _, b := range bad {
		_, err := Parse([]byte(b))
		require.Error(t, err, b)
	}
	_, err := Parse([]byte("shape: sideways"))
	require.ErrorIs(t, err, errs.ErrMalformed)
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o600))
	s, err := Load(p)
	require.NoError(t, err)
	require.Len(t, s.Fingerprints, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_ExampleFile(t *testing.T) {
	t.Parallel()

	set, err := Load(filepath.Join("..", "..", "cmd", "server", "fixtures.yaml"))
	require.NoError(t, err)
	require.Equal(t, ShapeWrapped, set.Shape)
	require.Contains(t, set.Referrers, "promo-summer")

	r, _, ok := set.Fingerprint(model.DeviceFingerprint{Platform: model.PlatformIOS, Locale: "en-US"})
	require.True(t, ok)
	require.Equal(t, "high", r.Body(set.Shape)["confidence"])
}
