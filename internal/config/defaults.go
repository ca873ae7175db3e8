package config

import (
	"os"
	"path/filepath"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Sync: SyncConfig{
			DebounceMS:     750,
			TimeoutSeconds: 10,
		},
		Notifications: NotificationConfig{
			AgedEnabled:     true,
			PriorityEnabled: true,
			DigestEnabled:   true,
			DigestTime:      "09:00",
		},
		Status: StatusServerConfig{
			Port: 8377,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".todoapp"
	}
	return filepath.Join(home, ".todoapp")
}

// MirrorPath is the local collection mirror inside the data dir.
func (c *Config) MirrorPath() string {
	return filepath.Join(c.DataDir, "todos.json")
}

// DatabasePath is the settings database inside the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "todoapp.db")
}
