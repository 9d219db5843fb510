// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// ClientVersion is the version this client reports to the server.
// The server rejects gated calls from clients it considers incompatible.
const ClientVersion = "1.0.0"

// ClientConfig holds configuration for the transcription client.
type ClientConfig struct {
	ServerURL       string
	RequestTimeout  time.Duration // per-request HTTP timeout
	PollInterval    time.Duration // job reconciliation period
	VersionInterval time.Duration // version probe period
	IdentityPath    string        // file holding the persisted client identity
	MetricsPort     string        // empty disables the metrics endpoint
}

// LoadClientConfig loads client configuration from environment variables.
func LoadClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:       GetEnv("SCRIBE_SERVER_URL", "http://localhost:8000"),
		RequestTimeout:  GetDurationEnv("SCRIBE_REQUEST_TIMEOUT", 30*time.Second),
		PollInterval:    GetDurationEnv("SCRIBE_POLL_INTERVAL", time.Second),
		VersionInterval: GetDurationEnv("SCRIBE_VERSION_INTERVAL", 5*time.Minute),
		IdentityPath:    GetEnv("SCRIBE_IDENTITY_FILE", defaultIdentityPath()),
		MetricsPort:     GetEnv("SCRIBE_METRICS_PORT", ""),
	}
}

// defaultIdentityPath places the identity file under the user config
// directory, falling back to the working directory when unavailable.
func defaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".scribe-identity"
	}
	return filepath.Join(dir, "scribe", "identity")
}
