// Package fingerprint collects a bounded, privacy-safe device snapshot for probabilistic matching.
package fingerprint

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/and161185/deferlink/internal/model"
)

// DeviceInfo is the platform device-info query. Any method may fail; failures are not fatal.
type DeviceInfo interface {
	VendorID(ctx context.Context) (string, error)
	Model(ctx context.Context) (string, error)
	OSVersion(ctx context.Context) (string, error)
	UserAgent(ctx context.Context) (string, error)
}

// LocaleSource reports the user's preferred locale in any common notation (en_US.UTF-8, en-US, en).
type LocaleSource interface {
	Locale() (string, error)
}

// Collector builds DeviceFingerprint snapshots. It is safe for concurrent use.
type Collector struct {
	platform      model.Platform
	device        DeviceInfo
	locale        LocaleSource
	now           func() time.Time
	allowVendorID bool
	log           *zap.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the time source; the zone of the returned time gives the timezone offset.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithVendorID permits collecting the platform vendor identifier.
func WithVendorID(allow bool) Option {
	return func(c *Collector) { c.allowVendorID = allow }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Collector) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCollector constructs a Collector. device and locale may be nil; their fields then take defaults.
func NewCollector(platform model.Platform, device DeviceInfo, locale LocaleSource, opts ...Option) *Collector {
	c := &Collector{
		platform: platform,
		device:   device,
		locale:   locale,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect returns a fresh snapshot. It never fails: unavailable fields get documented defaults.
func (c *Collector) Collect(ctx context.Context) model.DeviceFingerprint {
	now := c.now()
	_, offset := now.Zone()

	fp := model.DeviceFingerprint{
		Platform:              c.platform,
		Model:                 model.UnknownValue,
		OSVersion:             model.UnknownValue,
		TimezoneOffsetMinutes: offset / 60,
		Locale:                model.DefaultLocale,
		UserAgent:             DefaultUserAgent(c.platform),
		CollectedAt:           now,
	}

	if c.device != nil {
		if v, ok := c.query("model", func() (string, error) { return c.device.Model(ctx) }); ok {
			fp.Model = v
		}
		if v, ok := c.query("os_version", func() (string, error) { return c.device.OSVersion(ctx) }); ok {
			fp.OSVersion = v
		}
		if v, ok := c.query("user_agent", func() (string, error) { return c.device.UserAgent(ctx) }); ok {
			fp.UserAgent = v
		}
		if c.allowVendorID {
			if v, ok := c.query("vendor_id", func() (string, error) { return c.device.VendorID(ctx) }); ok {
				fp.VendorID = v
			}
		}
	}
	if c.locale != nil {
		if raw, ok := c.query("locale", c.locale.Locale); ok {
			if loc, ok := CanonicalLocale(raw); ok {
				fp.Locale = loc
			} else {
				c.log.Debug("unrecognized locale, using default", zap.String("raw", raw))
			}
		}
	}
	return fp
}

// query runs one sub-collection, swallowing errors and panics.
func (c *Collector) query(field string, fn func() (string, error)) (v string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Debug("device query panicked", zap.String("field", field), zap.Any("reason", r))
			v, ok = "", false
		}
	}()
	s, err := fn()
	if err != nil {
		c.log.Debug("device query failed", zap.String("field", field), zap.Error(err))
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// CanonicalLocale converts a locale string to language-COUNTRY form.
// A missing country is inferred from the language (fr -> fr-FR).
func CanonicalLocale(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, ".@"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.ReplaceAll(raw, "_", "-")
	if raw == "" {
		return "", false
	}
	tag, err := language.Parse(raw)
	if err != nil || tag == language.Und {
		return "", false
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", false
	}
	region, conf := tag.Region()
	if conf == language.No || region.String() == "ZZ" {
		return "", false
	}
	return base.String() + "-" + region.String(), true
}

// DefaultUserAgent is the platform-characteristic user agent used when the device reports none.
func DefaultUserAgent(p model.Platform) string {
	switch p {
	case model.PlatformIOS:
		return "Mozilla/5.0 (iPhone; CPU iPhone OS like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile"
	case model.PlatformAndroid:
		return "Mozilla/5.0 (Linux; Android) AppleWebKit/537.36 (KHTML, like Gecko) Mobile"
	default:
		return "Mozilla/5.0"
	}
}
