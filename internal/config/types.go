package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // DefaultTimezone must resolve on hosts without zoneinfo

	"eventsched/internal/observability/debugsrv"
)

// Config is the process configuration, read from JSON or YAML.
//
// Example (YAML):
//
//	logging: { level: info, console: true }
//	scheduler:
//	  timezone: Africa/Nairobi
//	  dispatch_schedule: 1m
//	  cleanup_schedule: 1h
//	  retention: 720h
//	delivery: { rate_per_sec: 20, max_retries: 3, channels: [IN_APP, EMAIL, SMS, PUSH] }
//	storage: { driver: sqlite, path: ./data/events.db, busy_timeout: 1s }
//	debug: { enabled: true, addr: 127.0.0.1:6060 }
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   StorageConfig   `json:"storage"`
	Debug     DebugConfig     `json:"debug"`
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

// SchedulerConfig controls the two engine ticks.
//
// Schedules accept cron ("*/1 * * * *", "@hourly"), Go durations ("1m")
// or HH:MM intervals ("01:00"). Retention is a Go duration string.
type SchedulerConfig struct {
	Timezone         string `json:"timezone,omitempty"`
	DispatchSchedule string `json:"dispatch_schedule,omitempty"`
	CleanupSchedule  string `json:"cleanup_schedule,omitempty"`
	Retention        string `json:"retention,omitempty"`
}

// DeliveryConfig controls the notification channels.
//
// Channels lists the methods that get a channel registered; omitted means all.
// max_retries is only recorded on delivery records.
type DeliveryConfig struct {
	RatePerSec int      `json:"rate_per_sec,omitempty"`
	MaxRetries *int     `json:"max_retries,omitempty"`
	Channels   []string `json:"channels,omitempty"`
}

// StorageConfig selects the event store.
//
//	"storage": { "driver": "file", "path": "./data/events" }
type StorageConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite
	Redis       RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// DebugConfig controls the optional healthz/status/pprof listener.
// A non-loopback addr requires token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

const (
	DefaultTimezone   = "Africa/Nairobi"
	DefaultRetention  = 30 * 24 * time.Hour
	DefaultMaxRetries = 3
)

var knownChannels = map[string]bool{"IN_APP": true, "EMAIL": true, "SMS": true, "PUSH": true}

var knownDrivers = map[string]bool{"": true, "memory": true, "mem": true, "file": true, "sqlite": true, "sqlite3": true, "redis": true}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "memory"},
	}
}

// Location resolves the configured zone (DefaultTimezone when empty).
func (c SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

func (c SchedulerConfig) RetentionWindow() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.retention", c.Retention, DefaultRetention)
}

func (c DeliveryConfig) Retries() int {
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// EnabledChannels returns the upper-cased channel list, or every known
// channel when none is configured.
func (c DeliveryConfig) EnabledChannels() []string {
	if len(c.Channels) == 0 {
		return []string{"IN_APP", "EMAIL", "SMS", "PUSH"}
	}
	out := make([]string, 0, len(c.Channels))
	for _, ch := range c.Channels {
		out = append(out, strings.ToUpper(strings.TrimSpace(ch)))
	}
	return out
}

func (c StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return ParseDurationField("storage.busy_timeout", c.BusyTimeout)
}

// Validate checks the settings that can be checked without opening anything.
// Schedule strings are checked by the scheduler when it compiles them.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}
	if _, err := c.Scheduler.RetentionWindow(); err != nil {
		return err
	}
	if c.Delivery.RatePerSec < 0 {
		return fmt.Errorf("delivery.rate_per_sec must be >= 0")
	}
	for _, ch := range c.Delivery.EnabledChannels() {
		if !knownChannels[ch] {
			return fmt.Errorf("delivery.channels: unknown channel %q", ch)
		}
	}
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if !knownDrivers[driver] {
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if (driver == "file" || driver == "sqlite" || driver == "sqlite3") && strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required for driver %q", driver)
	}
	if driver == "redis" && strings.TrimSpace(c.Storage.Redis.Addr) == "" {
		return fmt.Errorf("storage.redis.addr is required for driver redis")
	}
	if _, err := c.Storage.BusyTimeoutDuration(); err != nil {
		return err
	}
	if c.Debug.Enabled && c.Debug.Token == "" && c.Debug.Addr != "" && !debugsrv.IsLoopbackAddr(c.Debug.Addr) {
		return fmt.Errorf("debug.token is required for non-loopback debug.addr %q", c.Debug.Addr)
	}
	return nil
}
