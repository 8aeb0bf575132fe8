// Package config loads and validates deferlink configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/and161185/deferlink/internal/model"
	"github.com/and161185/deferlink/internal/retry"
)

// EnvPrefix is prepended to every environment variable (DEFERLINK_BASE_URL, ...).
const EnvPrefix = "DEFERLINK"

// Transport kinds.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config holds client and stub-server configuration.
type Config struct {
	// Transport selects the link-matching transport: http or grpc.
	Transport string `mapstructure:"TRANSPORT"`
	// BaseURL is the HTTP API root (e.g. https://links.example.com).
	BaseURL string `mapstructure:"BASE_URL"`
	// GRPCAddr is the gRPC target (host:port).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// GRPCPlaintext disables TLS on the gRPC connection (local stub only).
	GRPCPlaintext bool `mapstructure:"GRPC_PLAINTEXT"`
	// GRPCInsecureSkipVerify disables certificate verification (dev only).
	GRPCInsecureSkipVerify bool `mapstructure:"GRPC_INSECURE_SKIP_VERIFY"`
	// CACert is an optional PEM bundle for the gRPC server certificate.
	CACert string `mapstructure:"CA_CERT"`
	// APIKey is sent as the bearer credential.
	APIKey string `mapstructure:"API_KEY"`

	AttemptTimeout time.Duration `mapstructure:"ATTEMPT_TIMEOUT"`
	MaxAttempts    int           `mapstructure:"MAX_ATTEMPTS"`
	InitialBackoff time.Duration `mapstructure:"INITIAL_BACKOFF"`
	// Jitter is the backoff randomization factor in [0,1); 0 gives exact 2s/4s waits.
	Jitter float64 `mapstructure:"JITTER"`
	// HTTPTimeout is the outer HTTP client timeout.
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`

	// Platform is ios, android or web.
	Platform string `mapstructure:"PLATFORM"`
	// ReferrerToken simulates the OS install referrer; empty means none.
	ReferrerToken string `mapstructure:"REFERRER_TOKEN"`
	DeviceModel   string `mapstructure:"DEVICE_MODEL"`
	OSVersion     string `mapstructure:"OS_VERSION"`
	UserAgent     string `mapstructure:"USER_AGENT"`
	VendorID      string `mapstructure:"VENDOR_ID"`
	// AllowVendorID opts in to sending VendorID.
	AllowVendorID bool `mapstructure:"ALLOW_VENDOR_ID"`
	// Locale overrides the process locale (LC_ALL/LANG).
	Locale string `mapstructure:"LOCALE"`
	// StateDir holds install_state.json; empty uses the user config dir.
	StateDir string `mapstructure:"STATE_DIR"`

	StubHTTPAddr string `mapstructure:"STUB_HTTP_ADDR"`
	StubGRPCAddr string `mapstructure:"STUB_GRPC_ADDR"`
	StubFixtures string `mapstructure:"STUB_FIXTURES"`
	StubAPIKey   string `mapstructure:"STUB_API_KEY"`
	StubTLSCert  string `mapstructure:"STUB_TLS_CERT"`
	StubTLSKey   string `mapstructure:"STUB_TLS_KEY"`
}

var defaults = map[string]any{
	"TRANSPORT":                 TransportHTTP,
	"BASE_URL":                  "http://localhost:8088",
	"GRPC_ADDR":                 "localhost:9099",
	"GRPC_PLAINTEXT":            false,
	"GRPC_INSECURE_SKIP_VERIFY": false,
	"CA_CERT":                   "",
	"API_KEY":                   "",
	"ATTEMPT_TIMEOUT":           10 * time.Second,
	"MAX_ATTEMPTS":              retry.DefaultMaxAttempts,
	"INITIAL_BACKOFF":           2 * time.Second,
	"JITTER":                    0.0,
	"HTTP_TIMEOUT":              30 * time.Second,
	"PLATFORM":                  string(model.PlatformWeb),
	"REFERRER_TOKEN":            "",
	"DEVICE_MODEL":              "",
	"OS_VERSION":                "",
	"USER_AGENT":                "",
	"VENDOR_ID":                 "",
	"ALLOW_VENDOR_ID":           false,
	"LOCALE":                    "",
	"STATE_DIR":                 "",
	"STUB_HTTP_ADDR":            ":8088",
	"STUB_GRPC_ADDR":            ":9099",
	"STUB_FIXTURES":             "fixtures.yaml",
	"STUB_API_KEY":              "",
	"STUB_TLS_CERT":             "",
	"STUB_TLS_KEY":              "",
}

// Load reads envFile (".env" when empty; a missing file is ignored), then the
// DEFERLINK_-prefixed environment, and validates the result. Keys inside the
// .env file are written without the prefix. Environment variables win.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore missing file

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values shared by the client and the stub server.
func (c *Config) Validate() error {
	var problems []error
	if c.Transport != TransportHTTP && c.Transport != TransportGRPC {
		problems = append(problems, fmt.Errorf("config: TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportGRPC, c.Transport))
	}
	if c.AttemptTimeout <= 0 {
		problems = append(problems, errors.New("config: ATTEMPT_TIMEOUT must be positive"))
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > retry.DefaultMaxAttempts {
		problems = append(problems, fmt.Errorf("config: MAX_ATTEMPTS must be in [1,%d], got %d", retry.DefaultMaxAttempts, c.MaxAttempts))
	}
	if c.InitialBackoff <= 0 {
		problems = append(problems, errors.New("config: INITIAL_BACKOFF must be positive"))
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		problems = append(problems, errors.New("config: JITTER must be in [0,1)"))
	}
	if c.HTTPTimeout <= 0 {
		problems = append(problems, errors.New("config: HTTP_TIMEOUT must be positive"))
	}
	if _, ok := model.ParsePlatform(c.Platform); !ok {
		problems = append(problems, fmt.Errorf("config: PLATFORM %q is not ios, android or web", c.Platform))
	}
	if (c.StubTLSCert == "") != (c.StubTLSKey == "") {
		problems = append(problems, errors.New("config: STUB_TLS_CERT and STUB_TLS_KEY must be set together"))
	}
	return errors.Join(problems...)
}

// ValidateClient checks the fields the resolver needs to reach the backend.
func (c *Config) ValidateClient() error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch c.Transport {
	case TransportHTTP:
		if c.BaseURL == "" {
			return errors.New("config: BASE_URL must be set for the http transport")
		}
	case TransportGRPC:
		if c.GRPCAddr == "" {
			return errors.New("config: GRPC_ADDR must be set for the grpc transport")
		}
	}
	return nil
}

// PlatformValue returns the parsed platform; call after Validate.
func (c *Config) PlatformValue() model.Platform {
	p, _ := model.ParsePlatform(c.Platform)
	return p
}
