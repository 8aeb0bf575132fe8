// Package model defines the attribution data types shared by the collector, normalizer and resolver.
package model

import (
	"strings"
	"time"
)

// Platform identifies the host operating environment of the install.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// ParsePlatform maps a case-insensitive name onto a Platform.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(strings.ToLower(s)) {
	case PlatformIOS:
		return PlatformIOS, true
	case PlatformAndroid:
		return PlatformAndroid, true
	case PlatformWeb:
		return PlatformWeb, true
	}
	return "", false
}

// HasInstallReferrer reports whether the OS records an install referrer token.
// Only composition roots use this; the resolver checks for an injected source.
func (p Platform) HasInstallReferrer() bool { return p == PlatformAndroid }

// Fingerprint field defaults used when a sub-collection fails.
const (
	UnknownValue  = "unknown"
	DefaultLocale = "en-US"
)

// DeviceFingerprint is an immutable snapshot of privacy-safe device attributes.
type DeviceFingerprint struct {
	Platform              Platform  `json:"platform"`
	VendorID              string    `json:"vendorId,omitempty"` // never an advertising identifier
	Model                 string    `json:"model"`
	OSVersion             string    `json:"osVersion"`
	TimezoneOffsetMinutes int       `json:"timezoneOffsetMinutes"`
	Locale                string    `json:"locale"`
	UserAgent             string    `json:"userAgent"`
	CollectedAt           time.Time `json:"collectedAt"`
}
