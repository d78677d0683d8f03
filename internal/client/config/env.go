package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays cfg with PBSYNC_* environment variables. Unset or
// unparsable values leave the existing setting untouched.
func parseEnv(cfg *Config) {
	if v := os.Getenv("PBSYNC_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("PBSYNC_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("PBSYNC_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("PBSYNC_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("PBSYNC_DEVICE_ID"); v != "" {
		cfg.DeviceID = v
	}
	if v := os.Getenv("PBSYNC_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("PBSYNC_PUSH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PushMaxAttempts = n
		}
	}
	if v := os.Getenv("PBSYNC_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("PBSYNC_RELAY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RelayEnabled = b
		}
	}
}
