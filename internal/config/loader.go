package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the given file (or the default location
// when path is empty), layered over defaults. TODOAPP_* environment
// variables override file values, e.g. TODOAPP_SYNC_TOKEN.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TODOAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindKeys(v)

	if path == "" {
		path = filepath.Join(DefaultConfig().DataDir, "config.yaml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			applyEnv(v, cfg)
			return cfg, nil
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	applyEnv(v, cfg)
	return cfg, nil
}

// bindKeys registers every key so AutomaticEnv sees it even when the
// config file omits the section.
func bindKeys(v *viper.Viper) {
	for _, key := range []string{
		"data_dir",
		"sync.remote_url", "sync.token", "sync.debounce_ms", "sync.timeout_seconds",
		"notifications.aged_enabled", "notifications.priority_enabled",
		"notifications.digest_enabled", "notifications.digest_time",
		"status.port",
		"log.file", "log.max_size_mb", "log.max_backups",
	} {
		_ = v.BindEnv(key)
	}
}

// applyEnv copies the environment-backed keys that matter even without a
// config file.
func applyEnv(v *viper.Viper, cfg *Config) {
	if s := v.GetString("data_dir"); s != "" {
		cfg.DataDir = s
	}
	if s := v.GetString("sync.remote_url"); s != "" {
		cfg.Sync.RemoteURL = s
	}
	if s := v.GetString("sync.token"); s != "" {
		cfg.Sync.Token = s
	}
}
