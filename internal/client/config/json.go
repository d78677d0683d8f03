package config

import (
	"encoding/json"
	"os"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/flagx"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	ServerURL       string         `json:"server_url"`
	DatabasePath    string         `json:"database_path"`
	Username        string         `json:"username"`
	Password        string         `json:"password"`
	DeviceID        string         `json:"device_id"`
	RequestTimeout  timex.Duration `json:"request_timeout"`
	PushMaxAttempts int            `json:"push_max_attempts"`
	BackoffMin      timex.Duration `json:"backoff_min"`
	BackoffMax      timex.Duration `json:"backoff_max"`
	PullPageSize    int            `json:"pull_page_size"`
	PollInterval    timex.Duration `json:"poll_interval"`
	LockTTL         timex.Duration `json:"lock_ttl"`
	RelayEnabled    *bool          `json:"relay_enabled"`
}

// parseJson overlays cfg with values loaded from a JSON file resolved via
// the -c/-config flags. Missing file path means no overlay. Zero values in
// the file leave the corresponding defaults untouched.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.Username != "" {
		cfg.Username = jc.Username
	}
	if jc.Password != "" {
		cfg.Password = jc.Password
	}
	if jc.DeviceID != "" {
		cfg.DeviceID = jc.DeviceID
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.PushMaxAttempts != 0 {
		cfg.PushMaxAttempts = jc.PushMaxAttempts
	}
	if jc.BackoffMin.Duration != 0 {
		cfg.BackoffMin = jc.BackoffMin.Duration
	}
	if jc.BackoffMax.Duration != 0 {
		cfg.BackoffMax = jc.BackoffMax.Duration
	}
	if jc.PullPageSize != 0 {
		cfg.PullPageSize = jc.PullPageSize
	}
	if jc.PollInterval.Duration != 0 {
		cfg.PollInterval = jc.PollInterval.Duration
	}
	if jc.LockTTL.Duration != 0 {
		cfg.LockTTL = jc.LockTTL.Duration
	}
	if jc.RelayEnabled != nil {
		cfg.RelayEnabled = *jc.RelayEnabled
	}
}
