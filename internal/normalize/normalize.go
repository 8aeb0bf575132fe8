// Package normalize converts loosely-typed link-matching responses into model.MatchResult.
//
// The backend has shipped two envelopes over time:
//
//	wrapped: {"success": true, "match": {...payload...}}
//	flat:    {...payload...}
//
// Both are accepted without configuration. The envelope handling lives only
// in unwrap and can be dropped once the backend settles on one shape.
package normalize

import (
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Normalize parses raw and returns a MatchResult stamped with method.
// It never fails: anything it cannot interpret yields an unmatched result.
func Normalize(raw []byte, method model.Method) (res model.MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.Unmatched(method)
		}
	}()

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return model.Unmatched(method)
	}
	payload, ok := unwrap(obj)
	if !ok {
		return model.Unmatched(method)
	}
	res, err := extract(payload, method)
	if err != nil {
		return model.Unmatched(method)
	}
	return res
}

// unwrap selects the payload object. ok=false means the envelope itself says "no match".
func unwrap(obj map[string]any) (map[string]any, bool) {
	success, hasSuccess := obj["success"].(bool)
	inner, hasMatch := obj["match"]
	if !hasSuccess || !hasMatch {
		return obj, true
	}
	if !success || inner == nil {
		return nil, false
	}
	nested, ok := inner.(map[string]any)
	return nested, ok
}

func extract(payload map[string]any, method model.Method) (model.MatchResult, error) {
	r := &reader{m: payload}

	flag, flagSet := r.firstBool("matched", "found", "success")
	res := model.MatchResult{
		Method:          method,
		Confidence:      model.ParseConfidence(r.str("confidence")),
		Score:           clampScore(r.num("score")),
		LinkID:          r.str("linkId"),
		ShortCode:       r.str("shortCode"),
		PlatformMatched: r.str("platform"),
		AlreadyClaimed:  r.boolPtr("alreadyClaimed"),
		ClaimedAt:       parseTime(r.str("claimedAt")),
		MatchReasons:    r.strs("matchReasons"),
	}

	// deepLinkData is authoritative; top-level fields are accepted for older flat payloads.
	dl := r
	if nested := r.obj("deepLinkData"); nested != nil {
		dl = &reader{m: nested}
	}
	res.DeepLinkURL = dl.str("deepLinkUrl")
	res.Path = dl.str("path")
	res.Params = dl.params("params")
	if dl != r && dl.err != nil {
		return model.MatchResult{}, dl.err
	}
	if r.err != nil {
		return model.MatchResult{}, r.err
	}

	matched := res.DeepLinkURL != ""
	if flagSet {
		matched = flag && matched
	}
	res.Matched = matched
	return res, nil
}

func clampScore(f float64) int {
	switch {
	case f < model.MinScore:
		return model.MinScore
	case f > model.MaxScore:
		return model.MaxScore
	}
	return int(f)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

// reader extracts typed fields and remembers the first type mismatch.
// JSON null is treated as absent.
type reader struct {
	m   map[string]any
	err error
}

func (r *reader) fail(key string, v any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: field %q has type %T", errs.ErrMalformed, key, v)
	}
}

func (r *reader) str(key string) string {
	v, ok := r.m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, v)
	}
	return s
}

func (r *reader) num(key string) float64 {
	v, ok := r.m[key]
	if !ok || v == nil {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		r.fail(key, v)
	}
	return f
}

func (r *reader) boolPtr(key string) *bool {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(key, v)
		return nil
	}
	return &b
}

// firstBool returns the first present boolean among keys.
func (r *reader) firstBool(keys ...string) (bool, bool) {
	for _, k := range keys {
		if b := r.boolPtr(k); b != nil {
			return *b, true
		}
	}
	return false, false
}

func (r *reader) obj(key string) map[string]any {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil
	}
	o, ok := v.(map[string]any)
	if !ok {
		r.fail(key, v)
	}
	return o
}

func (r *reader) strs(key string) []string {
	v, ok := r.m[key]
	if !ok || v == nil {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		r.fail(key, v)
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, it := range arr {
		s, ok := it.(string)
		if !ok {
			r.fail(key, it)
			return nil
		}
		out = append(out, s)
	}
	return out
}

// params reads a string map; scalar numbers and booleans are stringified.
func (r *reader) params(key string) map[string]string {
	o := r.obj(key)
	if o == nil {
		return nil
	}
	out := make(map[string]string, len(o))
	for k, v := range o {
		switch x := v.(type) {
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(x)
		case nil:
		default:
			r.fail(key+"."+k, v)
			return nil
		}
	}
	return out
}
