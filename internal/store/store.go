// Package store provides the local durable key/value store backing session
// state: the last committed sync fingerprint, the storage mode, tombstones,
// and the notification scheduler's last-sent bookkeeping.
//
// The store is an embedded SQLite database opened in WAL mode so the daemon
// and a concurrently running CLI invocation can both touch it. Writes are
// eager; there is no teardown work beyond Close.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Durable keys.
const (
	KeyLastSyncFingerprint      = "lastSyncFingerprint"
	KeyStorageMode              = "storageMode"
	KeyWarningDismissed         = "localStorageWarningDismissed"
	KeyLastAgedNotification     = "lastAgedItemsNotification"
	KeyLastPriorityNotification = "lastHighPriorityNotification"
	KeyLastDailyDigest          = "lastDailyDigest"
	KeyNotificationSettings     = "notificationSettings"
	KeyDeletedIDs               = "deletedIds"
	KeyPendingConflict          = "pendingConflict"
)

// ErrNotFound is returned when a key has never been set.
var ErrNotFound = errors.New("store: key not found")

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the store at the given path.
// The caller MUST call Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &Store{conn: conn, path: path}

	// WAL for concurrent readers, busy timeout for the CLI/daemon overlap.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Close closes the store, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// Get returns the raw string value for a key.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the raw string value for a key.
func (s *Store) Set(key, value string) error {
	_, err := s.conn.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.conn.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// GetTime reads a millisecond-timestamp key. A missing key returns the zero
// time with no error, matching "never notified".
func (s *Store) GetTime(key string) (time.Time, error) {
	raw, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("key %s holds non-timestamp %q: %w", key, raw, err)
	}
	return time.UnixMilli(ms), nil
}

// SetTime writes a millisecond-timestamp key.
func (s *Store) SetTime(key string, t time.Time) error {
	return s.Set(key, strconv.FormatInt(t.UnixMilli(), 10))
}

// GetJSON unmarshals a JSON-valued key into dst. Returns ErrNotFound when
// the key has never been set.
func (s *Store) GetJSON(key string, dst any) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("key %s holds invalid JSON: %w", key, err)
	}
	return nil
}

// SetJSON marshals v into a JSON-valued key.
func (s *Store) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	return s.Set(key, string(data))
}

// DeletedIDs returns the persisted tombstone set.
func (s *Store) DeletedIDs() (map[string]bool, error) {
	var ids []string
	err := s.GetJSON(KeyDeletedIDs, &ids)
	if errors.Is(err, ErrNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// SetDeletedIDs persists the tombstone set.
func (s *Store) SetDeletedIDs(ids map[string]bool) error {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	return s.SetJSON(KeyDeletedIDs, list)
}
