// Package config handles configuration for the sync agent, including
// defaults, JSON overlay, and environment variables.
package config

import "time"

// Config holds runtime settings for the on-device sync agent.
//
// Fields:
//   - ServerURL: base URL of the authority API (e.g., "https://api.example.com").
//   - DatabasePath: path to the local SQLite store.
//   - Username / Password: credentials used for the initial login.
//   - DeviceID: stable identifier of this device; generated at startup
//     when empty. Pin it in config so checkpoints survive restarts.
//   - RequestTimeout: hard bound on every network call.
//   - PushMaxAttempts: attempts before a mutation is marked abandoned.
//   - BackoffMin / BackoffMax: exponential backoff window for retries.
//   - PullPageSize: page size for the change feed.
//   - PollInterval: fallback pull/push cadence when no relay events arrive.
//   - LockTTL: TTL requested for remote edit leases.
//   - RelayEnabled: whether to keep a websocket relay subscription open.
type Config struct {
	ServerURL       string
	DatabasePath    string
	Username        string
	Password        string
	DeviceID        string
	RequestTimeout  time.Duration
	PushMaxAttempts int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	PullPageSize    int
	PollInterval    time.Duration
	LockTTL         time.Duration
	RelayEnabled    bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "pbookspro.db"
	c.RequestTimeout = 15 * time.Second
	c.PushMaxAttempts = 8
	c.BackoffMin = 1 * time.Second
	c.BackoffMax = 60 * time.Second
	c.PullPageSize = 200
	c.PollInterval = 30 * time.Second
	c.LockTTL = 30 * time.Second
	c.RelayEnabled = true
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and environment variables. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	return cfg
}
