package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/deferlink/internal/model"
)

func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	require.Equal(t, TransportHTTP, cfg.Transport)
	require.Equal(t, 10*time.Second, cfg.AttemptTimeout)
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.InitialBackoff)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Zero(t, cfg.Jitter)
	require.Equal(t, model.PlatformWeb, cfg.PlatformValue())
	require.False(t, cfg.AllowVendorID)
	require.Equal(t, ":8088", cfg.StubHTTPAddr)
	require.NoError(t, cfg.ValidateClient())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DEFERLINK_TRANSPORT", "grpc")
	t.Setenv("DEFERLINK_GRPC_ADDR", "links:443")
	t.Setenv("DEFERLINK_ATTEMPT_TIMEOUT", "3s")
	t.Setenv("DEFERLINK_MAX_ATTEMPTS", "2")
	t.Setenv("DEFERLINK_PLATFORM", "android")
	t.Setenv("DEFERLINK_ALLOW_VENDOR_ID", "true")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	require.Equal(t, TransportGRPC, cfg.Transport)
	require.Equal(t, "links:443", cfg.GRPCAddr)
	require.Equal(t, 3*time.Second, cfg.AttemptTimeout)
	require.Equal(t, 2, cfg.MaxAttempts)
	require.Equal(t, model.PlatformAndroid, cfg.PlatformValue())
	require.True(t, cfg.AllowVendorID)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_KEY=from-file\nREFERRER_TOKEN=tok-1\nPLATFORM=ios\n"), 0o600))
	t.Setenv("DEFERLINK_PLATFORM", "android")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.APIKey)
	require.Equal(t, "tok-1", cfg.ReferrerToken)
	require.Equal(t, model.PlatformAndroid, cfg.PlatformValue(), "environment wins over .env")
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"DEFERLINK_TRANSPORT":       "carrier-pigeon",
		"DEFERLINK_MAX_ATTEMPTS":    "0",
		"DEFERLINK_ATTEMPT_TIMEOUT": "-1s",
		"DEFERLINK_JITTER":          "1.5",
		"DEFERLINK_PLATFORM":        "symbian",
		"DEFERLINK_STUB_TLS_CERT":   "cert.pem",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load(noEnvFile(t))
			require.Error(t, err)
		})
	}
}

func TestLoad_MaxAttemptsAboveContract(t *testing.T) {
	t.Setenv("DEFERLINK_MAX_ATTEMPTS", "10")

	_, err := Load(noEnvFile(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "MAX_ATTEMPTS")
}

func TestValidateClient(t *testing.T) {
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	cfg.BaseURL = ""
	require.Error(t, cfg.ValidateClient())

	cfg.Transport = TransportGRPC
	cfg.GRPCAddr = ""
	require.Error(t, cfg.ValidateClient())
}
