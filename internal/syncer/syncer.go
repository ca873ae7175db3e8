// Package syncer implements the sync orchestrator: the component that keeps
// the locally held collection coherent with the cloud replica.
//
// The orchestrator owns debounced optimistic saves, reconciliation via the
// merge package, conflict promotion and resolution, the offline queue,
// tombstone tracking, and fingerprint-based write suppression. Its public
// surface never panics: failures land in Status plus a returned error, and
// a conflict is a first-class outcome rather than an error.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/richardjkendall/todoapp/internal/localfile"
	"github.com/richardjkendall/todoapp/internal/remote"
	"github.com/richardjkendall/todoapp/internal/store"
	"github.com/richardjkendall/todoapp/internal/task"
)

// Sentinel outcomes.
var (
	// ErrConflictPending is returned when reconciliation surfaced
	// conflicts that need user input; nothing was committed.
	ErrConflictPending = errors.New("syncer: conflicts need user input")
	// ErrStaleLoad is returned when a Load response was superseded by a
	// newer Load call.
	ErrStaleLoad = errors.New("syncer: load superseded")
	// ErrNoConflict is returned by ResolveConflict when no conflict is
	// pending.
	ErrNoConflict = errors.New("syncer: no pending conflict")
)

// Config holds orchestrator tuning.
type Config struct {
	// DebounceInterval is the quiet period before a debounced save
	// flushes. Typical values are 500ms-1500ms.
	DebounceInterval time.Duration

	// MaxAttempts bounds network retries per flush.
	MaxAttempts int

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration

	// BackoffCap bounds the retry delay.
	BackoffCap time.Duration

	// Logger for orchestrator activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 750 * time.Millisecond,
		MaxAttempts:      5,
		BackoffBase:      time.Second,
		BackoffCap:       30 * time.Second,
		Logger:           log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// normalizeConfig fills zero-valued tuning fields so a partially built
// config still gets retries and backoff.
func normalizeConfig(c *Config) {
	d := DefaultConfig()
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = d.DebounceInterval
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = d.BackoffCap
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
}

// SaveOptions modifies a Save call.
type SaveOptions struct {
	// ShowUserFeedback asks observers to surface progress for this save.
	ShowUserFeedback bool
}

// queuedWrite is one pending offline snapshot. Entries are idempotent:
// each is re-reconciled against the then-current remote on drain, so only
// the newest snapshot is retained.
type queuedWrite struct {
	snapshot task.Collection
	queuedAt time.Time
}

// Syncer is the sync orchestrator. State is guarded by one mutex and every
// awaited operation re-reads it after resumption. Mode, tombstones, the
// fingerprint, and any pending conflict are mirrored into the durable
// store so they survive the process.
type Syncer struct {
	remote     remote.Store
	kv         *store.Store
	mirrorPath string
	config     *Config

	mu           sync.Mutex
	mode         Mode
	status       Status
	lastError    string
	lastSyncTime time.Time
	online       bool
	deleted      map[string]bool
	conflict     *ConflictInfo
	queue        []queuedWrite
	fingerprint  string
	committed    task.Collection
	pending      task.Collection
	timer        *time.Timer
	loadNonce    uint64
	closed       bool

	// OnStatusChange and OnCommit observe state for the UI shell. They
	// are invoked from orchestrator goroutines and must not call back
	// into the Syncer.
	OnStatusChange func(Status)
	OnCommit       func(task.Collection)
}

// New creates an orchestrator. Session state (mode, tombstones, last
// committed fingerprint, any unsettled conflict) is restored from the
// durable store, and the local mirror file becomes the last committed
// snapshot. Zero-valued config fields take the DefaultConfig values.
func New(remoteStore remote.Store, kv *store.Store, mirrorPath string, config *Config) (*Syncer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	normalizeConfig(config)

	s := &Syncer{
		remote:     remoteStore,
		kv:         kv,
		mirrorPath: mirrorPath,
		config:     config,
		mode:       ModeLocal,
		status:     StatusIdle,
		online:     true,
		deleted:    make(map[string]bool),
	}

	if kv != nil {
		if mode, err := kv.Get(store.KeyStorageMode); err == nil && Mode(mode) == ModeCloud {
			s.mode = ModeCloud
		}
		if fp, err := kv.Get(store.KeyLastSyncFingerprint); err == nil {
			s.fingerprint = fp
		}
		deleted, err := kv.DeletedIDs()
		if err != nil {
			return nil, fmt.Errorf("failed to restore tombstones: %w", err)
		}
		s.deleted = deleted

		// A conflict surfaced by an earlier process is still pending.
		var pending ConflictInfo
		switch err := kv.GetJSON(store.KeyPendingConflict, &pending); {
		case err == nil:
			s.conflict = &pending
			s.status = StatusConflict
		case !errors.Is(err, store.ErrNotFound):
			config.Logger.Printf("Failed to restore pending conflict: %v", err)
		}
	}

	committed, err := localfile.Load(mirrorPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load local mirror: %w", err)
	}
	s.committed = committed

	return s, nil
}

// Mode returns the storage mode.
func (s *Syncer) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Status returns the current sync status.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the user-visible message for the most recent failure.
func (s *Syncer) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// LastSyncTime returns when the last successful sync committed.
func (s *Syncer) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncTime
}

// Committed returns a copy of the last successfully committed snapshot.
func (s *Syncer) Committed() task.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed.Clone()
}

// ConflictInfo returns the pending conflict, or nil.
func (s *Syncer) ConflictInfo() *ConflictInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflict
}

// Save schedules an optimistic, debounced save of the given collection.
// If the collection's fingerprint matches the last committed one the call
// is a no-op. Multiple calls within the quiet window collapse into a
// single flush carrying the newest snapshot.
func (s *Syncer) Save(todos task.Collection, opts SaveOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	fp := task.Fingerprint(todos)
	if fp == s.fingerprint {
		return
	}

	s.pending = todos.Clone()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.config.DebounceInterval, func() {
		s.mu.Lock()
		snapshot := s.pending
		s.pending = nil
		s.timer = nil
		closed := s.closed
		s.mu.Unlock()
		if closed || snapshot == nil {
			return
		}
		if err := s.flush(context.Background(), snapshot); err != nil && !errors.Is(err, ErrConflictPending) {
			s.config.Logger.Printf("Debounced flush failed: %v", err)
		}
	})
}

// SaveImmediately bypasses the debounce; used on app close or when the
// window goes hidden. Returns ErrConflictPending when reconciliation
// surfaced conflicts.
func (s *Syncer) SaveImmediately(ctx context.Context, todos task.Collection) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	fp := task.Fingerprint(todos)
	unchanged := fp == s.fingerprint
	s.mu.Unlock()

	if unchanged {
		return nil
	}
	return s.flush(ctx, todos.Clone())
}

// Flush pushes any pending debounced snapshot without waiting out the
// quiet window. A no-op when nothing is pending.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	closed := s.closed
	s.mu.Unlock()

	if closed || snapshot == nil {
		return nil
	}
	return s.flush(ctx, snapshot)
}

// Load fetches the remote collection. Loads are not cancellable, so each
// carries a nonce; a response that is no longer the latest is discarded
// with ErrStaleLoad. A parse failure surfaces as an error and never
// overwrites local state.
func (s *Syncer) Load(ctx context.Context) (task.Collection, error) {
	if s.remote == nil {
		return s.Committed(), nil
	}
	s.mu.Lock()
	s.loadNonce++
	nonce := s.loadNonce
	s.setStatusLocked(StatusLoading, "")
	s.mu.Unlock()

	doc, err := s.remote.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if nonce != s.loadNonce {
		return nil, ErrStaleLoad
	}

	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			s.setStatusLocked(StatusIdle, "")
			return task.Collection{}, nil
		}
		s.setStatusLocked(StatusError, userMessage(err))
		return nil, err
	}

	s.setStatusLocked(StatusIdle, "")
	return doc.Collection(), nil
}

// MarkAsDeleted records a tombstone so reconciliation will not re-add the
// id from the remote side.
func (s *Syncer) MarkAsDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[id] = true
	s.persistTombstonesLocked()
}

// ClearDeletedTracking drops all tombstones.
func (s *Syncer) ClearDeletedTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = make(map[string]bool)
	s.persistTombstonesLocked()
}

// DeletedIDs returns a copy of the tombstone set.
func (s *Syncer) DeletedIDs() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.deleted))
	for id := range s.deleted {
		out[id] = true
	}
	return out
}

// SetOnline records a connectivity transition. Going online drains the
// offline queue; only the newest queued snapshot is flushed.
func (s *Syncer) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	var drain *queuedWrite
	if online && !wasOnline && len(s.queue) > 0 {
		entry := s.queue[len(s.queue)-1]
		drain = &entry
		s.queue = nil
	}
	if !online && s.status != StatusConflict {
		s.setStatusLocked(StatusOffline, "offline")
	}
	s.mu.Unlock()

	if drain != nil {
		s.config.Logger.Printf("Back online, draining queued write from %s", drain.queuedAt.Format(time.RFC3339))
		if err := s.flush(context.Background(), drain.snapshot); err != nil && !errors.Is(err, ErrConflictPending) {
			s.config.Logger.Printf("Queue drain failed: %v", err)
		}
	}
}

// Online reports the current connectivity assumption.
func (s *Syncer) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Migrate performs the one-shot upload of a locally held collection when
// cloud mode is first enabled.
func (s *Syncer) Migrate(ctx context.Context, local task.Collection) error {
	if s.remote == nil {
		return errors.New("no remote configured")
	}
	s.mu.Lock()
	s.mode = ModeCloud
	s.mu.Unlock()

	if s.kv != nil {
		if err := s.kv.Set(store.KeyStorageMode, string(ModeCloud)); err != nil {
			return fmt.Errorf("failed to persist storage mode: %w", err)
		}
	}
	return s.flush(ctx, local.Clone())
}

// Close releases the debounce timer. Pending state is not flushed; callers
// that need a final flush use SaveImmediately first.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// setStatusLocked updates status and fires the observer. Callers hold mu.
func (s *Syncer) setStatusLocked(status Status, message string) {
	if s.status == status && s.lastError == message {
		return
	}
	s.status = status
	s.lastError = message
	if s.OnStatusChange != nil {
		go s.OnStatusChange(status)
	}
}

// persistConflictLocked mirrors the pending conflict into the durable
// store so a later process can still offer resolution. Callers hold mu.
func (s *Syncer) persistConflictLocked() {
	if s.kv == nil {
		return
	}
	if s.conflict == nil {
		if err := s.kv.Delete(store.KeyPendingConflict); err != nil {
			s.config.Logger.Printf("Failed to clear persisted conflict: %v", err)
		}
		return
	}
	if err := s.kv.SetJSON(store.KeyPendingConflict, s.conflict); err != nil {
		s.config.Logger.Printf("Failed to persist conflict: %v", err)
	}
}

func (s *Syncer) persistTombstonesLocked() {
	if s.kv == nil {
		return
	}
	if err := s.kv.SetDeletedIDs(s.deleted); err != nil {
		s.config.Logger.Printf("Failed to persist tombstones: %v", err)
	}
}

// userMessage maps an error to the short, cause-attributed text shown to
// the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		return "sign-in required"
	case errors.Is(err, remote.ErrUnreadable):
		return "cloud copy unreadable"
	default:
		return "sync failed"
	}
}
