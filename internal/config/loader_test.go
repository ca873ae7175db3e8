package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Sync.DebounceMS != 750 {
		t.Errorf("expected 750ms debounce, got %d", cfg.Sync.DebounceMS)
	}
	if cfg.Sync.TimeoutSeconds != 10 {
		t.Errorf("expected 10s timeout, got %d", cfg.Sync.TimeoutSeconds)
	}
	if !cfg.Notifications.AgedEnabled || !cfg.Notifications.PriorityEnabled || !cfg.Notifications.DigestEnabled {
		t.Error("expected all notification channels enabled by default")
	}
	if cfg.Notifications.DigestTime != "09:00" {
		t.Errorf("expected 09:00 digest time, got %s", cfg.Notifications.DigestTime)
	}
	if cfg.Status.Port != 8377 {
		t.Errorf("unexpected status port %d", cfg.Status.Port)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `data_dir: /tmp/todoapp-test
sync:
  remote_url: https://example.com/todos
  debounce_ms: 250
notifications:
  digest_enabled: false
  digest_time: "18:30"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/tmp/todoapp-test" {
		t.Errorf("unexpected data dir %s", cfg.DataDir)
	}
	if cfg.Sync.RemoteURL != "https://example.com/todos" {
		t.Errorf("unexpected remote url %s", cfg.Sync.RemoteURL)
	}
	if cfg.Sync.DebounceMS != 250 {
		t.Errorf("file value should override default, got %d", cfg.Sync.DebounceMS)
	}
	// Keys the file omits keep their defaults.
	if cfg.Sync.TimeoutSeconds != 10 {
		t.Errorf("expected default timeout, got %d", cfg.Sync.TimeoutSeconds)
	}
	if cfg.Notifications.DigestEnabled {
		t.Error("digest should be disabled by the file")
	}
	if cfg.Notifications.DigestTime != "18:30" {
		t.Errorf("unexpected digest time %s", cfg.Notifications.DigestTime)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  token: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TODOAPP_SYNC_TOKEN", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.Token != "from-env" {
		t.Errorf("environment should override the file, got %q", cfg.Sync.Token)
	}
}

func TestLoadMissingDefaultFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.DebounceMS != 750 {
		t.Errorf("expected defaults when no file exists, got %d", cfg.Sync.DebounceMS)
	}
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(": not yaml ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"
	if cfg.MirrorPath() != filepath.Join("/data", "todos.json") {
		t.Errorf("unexpected mirror path %s", cfg.MirrorPath())
	}
	if cfg.DatabasePath() != filepath.Join("/data", "todoapp.db") {
		t.Errorf("unexpected database path %s", cfg.DatabasePath())
	}
}
