// Package convert maps domain values to and from the link-matching wire formats.
package convert

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
)

// gRPC service and method names. Messages are google.protobuf.Struct carrying
// the same JSON objects as the HTTP API.
const (
	ServiceName              = "deferlink.v1.LinkMatch"
	MethodLookupByReferrer   = "/" + ServiceName + "/LookupByReferrer"
	MethodMatchByFingerprint = "/" + ServiceName + "/MatchByFingerprint"
)

// MetadataRequestID is the gRPC metadata key carrying a per-call UUID.
const MetadataRequestID = "x-request-id"

// HTTP routes.
const (
	PathReferrer    = "/v1/match/referrer"
	PathFingerprint = "/v1/match/fingerprint"
)

// FieldReferrer is the request key carrying the referrer token.
const FieldReferrer = "referrer"

// ReferrerRequest builds the referrer lookup body.
func ReferrerRequest(token string) map[string]any {
	return map[string]any{FieldReferrer: token}
}

// FingerprintRequest builds the fingerprint match body.
func FingerprintRequest(fp model.DeviceFingerprint) map[string]any {
	m := map[string]any{
		"platform":              string(fp.Platform),
		"model":                 fp.Model,
		"osVersion":             fp.OSVersion,
		"timezoneOffsetMinutes": fp.TimezoneOffsetMinutes,
		"locale":                fp.Locale,
		"userAgent":             fp.UserAgent,
		"collectedAt":           fp.CollectedAt.UTC().Format(time.RFC3339Nano),
	}
	if fp.VendorID != "" {
		m["vendorId"] = fp.VendorID
	}
	return m
}

// ToStruct wraps a JSON-like map into a protobuf Struct.
func ToStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformed, err)
	}
	return s, nil
}

// StructToJSON renders a Struct as a JSON object.
func StructToJSON(s *structpb.Struct) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return protojson.Marshal(s)
}

// ReferrerFromStruct extracts the referrer token from a lookup request.
func ReferrerFromStruct(s *structpb.Struct) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[FieldReferrer].GetStringValue()
}

// FingerprintFromMap decodes a fingerprint request body. Unknown or missing fields are left zero.
func FingerprintFromMap(m map[string]any) (model.DeviceFingerprint, error) {
	var fp model.DeviceFingerprint
	p, _ := m["platform"].(string)
	plat, ok := model.ParsePlatform(p)
	if !ok {
		return fp, fmt.Errorf("%w: platform %q", errs.ErrMalformed, p)
	}
	fp.Platform = plat
	fp.VendorID, _ = m["vendorId"].(string)
	fp.Model, _ = m["model"].(string)
	fp.OSVersion, _ = m["osVersion"].(string)
	fp.Locale, _ = m["locale"].(string)
	fp.UserAgent, _ = m["userAgent"].(string)
	switch v := m["timezoneOffsetMinutes"].(type) {
	case float64:
		fp.TimezoneOffsetMinutes = int(v)
	case int:
		fp.TimezoneOffsetMinutes = v
	}
	if ts, _ := m["collectedAt"].(string); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			fp.CollectedAt = t
		}
	}
	return fp, nil
}

// FingerprintFromStruct decodes a fingerprint request received over gRPC.
func FingerprintFromStruct(s *structpb.Struct) (model.DeviceFingerprint, error) {
	if s == nil {
		return model.DeviceFingerprint{}, fmt.Errorf("%w: empty request", errs.ErrMalformed)
	}
	return FingerprintFromMap(s.AsMap())
}
