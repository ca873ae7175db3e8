// Package config loads the application configuration from config.yaml,
// environment variables, and built-in defaults.
package config

// Config is the full application configuration.
type Config struct {
	// DataDir holds the local mirror (todos.json) and the settings
	// database. Defaults to ~/.todoapp.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	Sync          SyncConfig         `yaml:"sync" mapstructure:"sync"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
	Status        StatusServerConfig `yaml:"status" mapstructure:"status"`
	Log           LogConfig          `yaml:"log" mapstructure:"log"`
}

// SyncConfig configures the cloud synchronization layer.
type SyncConfig struct {
	// RemoteURL is the blob endpoint. Empty keeps the app local-only.
	RemoteURL string `yaml:"remote_url" mapstructure:"remote_url"`
	// Token authenticates against the remote. TODOAPP_SYNC_TOKEN
	// overrides the file value.
	Token string `yaml:"token" mapstructure:"token"`
	// DebounceMS is the save debounce interval in milliseconds.
	DebounceMS int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	// TimeoutSeconds bounds each remote request.
	TimeoutSeconds int `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// NotificationConfig configures the background notification scheduler.
type NotificationConfig struct {
	AgedEnabled     bool   `yaml:"aged_enabled" mapstructure:"aged_enabled"`
	PriorityEnabled bool   `yaml:"priority_enabled" mapstructure:"priority_enabled"`
	DigestEnabled   bool   `yaml:"digest_enabled" mapstructure:"digest_enabled"`
	// DigestTime is the daily digest target in HH:MM local time.
	DigestTime      string `yaml:"digest_time" mapstructure:"digest_time"`
}

// StatusServerConfig configures the local status websocket server.
type StatusServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures log output.
type LogConfig struct {
	// File is a rotated log file path. Empty logs to stderr.
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}
