package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Server  ServerConfig  `json:"server"`

	// Signing configures the meeting-join credential issuer.
	// Key/secret can also come from BOTSWARM_SDK_KEY / BOTSWARM_SDK_SECRET,
	// which take precedence over the file.
	Signing SigningConfig `json:"signing"`

	Dispatch DispatchConfig `json:"dispatch"`
	Browsers BrowsersConfig `json:"browsers"`

	// Scheduler controls recurring dispatches (cron-triggered).
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	Schedules []ScheduleSpec  `json:"schedules,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Metrics MetricsConfig  `json:"metrics,omitempty"`
	Pprof   PprofConfig    `json:"pprof,omitempty"`
}

// PprofConfig controls the optional profiling listener. A non-loopback addr
// requires a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token   string `json:"token,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ServerConfig controls the HTTP API server.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type ServerConfig struct {
	Addr         string `json:"addr,omitempty"` // default ":8080"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type SigningConfig struct {
	SDKKey    string `json:"sdk_key,omitempty"`
	SDKSecret string `json:"sdk_secret,omitempty"`

	// Origin overrides the join-page origin. When empty, the request's
	// Origin header is used.
	Origin string `json:"origin,omitempty"`
}

// DispatchConfig controls the bounded-concurrency dispatch scheduler.
//
// Defaults (when fields are omitted/zero):
//   - max_concurrent: 4
//   - task_timeout: "60s"
//   - min_per_engine: 2
//   - launch_rate_per_sec: 0 (unlimited)
type DispatchConfig struct {
	MaxConcurrent int `json:"max_concurrent,omitempty"`

	// TaskTimeout bounds one isolated execution unit (engine launch + all
	// of its pages). Go duration string.
	TaskTimeout string `json:"task_timeout,omitempty"`

	MinPerEngine int `json:"min_per_engine,omitempty"`

	// LaunchRatePerSec throttles engine-instance launches across waves to
	// stay under platform rate limits. 0 disables throttling.
	LaunchRatePerSec int `json:"launch_rate_per_sec,omitempty"`
}

// BrowsersConfig maps each engine kind to the driver command that speaks the
// agent protocol on stdin/stdout.
//
// When DryRun is set, no subprocesses are spawned; an in-process fake engine
// is used instead (pages "join" immediately). Useful for smoke tests.
type BrowsersConfig struct {
	DryRun   bool          `json:"dry_run,omitempty"`
	Chromium BrowserDriver `json:"chromium,omitempty"`
	Firefox  BrowserDriver `json:"firefox,omitempty"`
	Webkit   BrowserDriver `json:"webkit,omitempty"`
}

type BrowserDriver struct {
	// Command is the driver argv, e.g. ["botswarm-driver", "--engine=chromium"].
	Command []string `json:"command,omitempty"`
}

type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
}

// ScheduleSpec defines one recurring dispatch.
type ScheduleSpec struct {
	Name      string `json:"name"`
	Cron      string `json:"cron"`
	MeetingID string `json:"meeting_id"`
	Password  string `json:"password"`
	BotCount  int    `json:"bot_count"`
	Enabled   bool   `json:"enabled"`
}

// StorageConfig controls the optional dispatch-history persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./botswarm.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// Validate rejects configs that cannot possibly work before they are
// committed/published on hot reload.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Dispatch.MaxConcurrent < 0 {
		return fmt.Errorf("dispatch.max_concurrent must be >= 0")
	}
	if c.Dispatch.MinPerEngine < 0 {
		return fmt.Errorf("dispatch.min_per_engine must be >= 0")
	}
	if _, err := ParseDurationField("dispatch.task_timeout", c.Dispatch.TaskTimeout); err != nil {
		return err
	}
	for _, field := range []struct{ path, raw string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
	} {
		if _, err := ParseDurationField(field.path, field.raw); err != nil {
			return err
		}
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	for i, sp := range c.Schedules {
		if strings.TrimSpace(sp.Name) == "" {
			return fmt.Errorf("schedules[%d]: name is required", i)
		}
		if strings.TrimSpace(sp.Cron) == "" {
			return fmt.Errorf("schedules[%d]: cron is required", i)
		}
		if strings.TrimSpace(sp.MeetingID) == "" {
			return fmt.Errorf("schedules[%d]: meeting_id is required", i)
		}
		if sp.BotCount <= 0 {
			return fmt.Errorf("schedules[%d]: bot_count must be > 0", i)
		}
	}
	if c.Storage != nil {
		d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		switch d {
		case "", "none", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalJSON disallows unknown fields so typos in config files are caught
// early during load/reload.
func (c *Config) UnmarshalJSON(b []byte) error {
	type alias Config
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t alias
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*c = Config(t)
	return nil
}
