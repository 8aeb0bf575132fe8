package fingerprint

import (
	"context"
	"os"
	"strings"

	"github.com/and161185/deferlink/internal/errs"
)

// StaticDevice serves device attributes from fixed values (config, flags, tests).
// Empty fields report an error so the collector applies its defaults.
type StaticDevice struct {
	Vendor   string
	Hardware string
	OS       string
	Agent    string
}

var _ DeviceInfo = StaticDevice{}

func (d StaticDevice) VendorID(context.Context) (string, error)  { return orMissing(d.Vendor) }
func (d StaticDevice) Model(context.Context) (string, error)     { return orMissing(d.Hardware) }
func (d StaticDevice) OSVersion(context.Context) (string, error) { return orMissing(d.OS) }
func (d StaticDevice) UserAgent(context.Context) (string, error) { return orMissing(d.Agent) }

func orMissing(v string) (string, error) {
	if v == "" {
		return "", errs.ErrNotFound
	}
	return v, nil
}

// EnvLocale reads the POSIX locale variables in precedence order LC_ALL, LC_MESSAGES, LANG.
type EnvLocale struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (e EnvLocale) Locale() (string, error) {
	get := e.Getenv
	if get == nil {
		get = os.Getenv
	}
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(get(k)); v != "" {
			return v, nil
		}
	}
	return "", errs.ErrNotFound
}

// FixedLocale reports a constant locale.
type FixedLocale string

func (f FixedLocale) Locale() (string, error) { return orMissing(string(f)) }
