package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardjkendall/todoapp/internal/localfile"
	"github.com/richardjkendall/todoapp/internal/merge"
	"github.com/richardjkendall/todoapp/internal/remote"
	"github.com/richardjkendall/todoapp/internal/store"
	"github.com/richardjkendall/todoapp/internal/task"
)

// flush runs the debounced-save algorithm on a snapshot:
//
//  1. If offline, enqueue the snapshot (coalesced) and return.
//  2. Read the remote blob and reconcile against it.
//  3. If clean, write the merged blob and commit.
//  4. If conflicted, promote to the UI and write nothing.
//
// Network failures use exponential backoff; after the last attempt the
// optimistic local state is kept and the status turns to error.
func (s *Syncer) flush(ctx context.Context, snapshot task.Collection) error {
	s.mu.Lock()
	if !s.online {
		s.queue = []queuedWrite{{snapshot: snapshot, queuedAt: time.Now()}}
		s.setStatusLocked(StatusOffline, "offline")
		s.mu.Unlock()
		s.config.Logger.Printf("Offline, queued snapshot of %d records", len(snapshot))
		return nil
	}
	s.setStatusLocked(StatusSaving, "")
	s.mu.Unlock()

	// Without a configured remote, saves go straight to the local mirror.
	if s.remote == nil {
		s.commit(snapshot)
		return nil
	}

	var remoteCol task.Collection
	err := s.withRetry(ctx, func(ctx context.Context) error {
		doc, err := s.remote.Load(ctx)
		if errors.Is(err, remote.ErrNotFound) {
			remoteCol = task.Collection{}
			return nil
		}
		if err != nil {
			return err
		}
		remoteCol = doc.Collection()
		return nil
	})
	if err != nil {
		s.fail(err)
		return err
	}

	merged, err := s.reconcile(snapshot, remoteCol, latestModified(snapshot), latestModified(remoteCol))
	if err != nil {
		return err
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.remote.Save(ctx, remote.NewDocument(merged, time.Now()))
	})
	if err != nil {
		s.fail(err)
		return err
	}

	s.commit(merged)
	return nil
}

// reconcile merges a local snapshot against the remote collection. When
// conflicts need user input it populates ConflictInfo, sets the conflict
// status, and returns ErrConflictPending without committing anything.
func (s *Syncer) reconcile(local, remoteCol task.Collection, localModified, remoteModified int64) (task.Collection, error) {
	s.mu.Lock()
	deleted := make(map[string]bool, len(s.deleted))
	for id := range s.deleted {
		deleted[id] = true
	}
	s.mu.Unlock()

	merged, outcome := merge.Merge(local, remoteCol, deleted)
	if outcome.Clean() {
		return merged, nil
	}

	s.mu.Lock()
	s.conflict = &ConflictInfo{
		Conflicts:      outcome.NeedsUserInput,
		Local:          local.Clone(),
		Remote:         remoteCol.Clone(),
		LocalModified:  localModified,
		RemoteModified: remoteModified,
		Timestamp:      time.Now(),
		Kind:           string(merge.StrategyFieldBased),
	}
	s.setStatusLocked(StatusConflict, "")
	s.persistConflictLocked()
	s.mu.Unlock()

	s.config.Logger.Printf("Reconciliation surfaced %d conflicts needing user input", len(outcome.NeedsUserInput))
	return nil, ErrConflictPending
}

// Reconcile is the public reconciliation entry point: it merges the two
// collections and, when clean, commits the result locally. The modified
// instants describe each side for conflict display.
func (s *Syncer) Reconcile(local, remoteCol task.Collection, localModified, remoteModified int64) (task.Collection, error) {
	merged, err := s.reconcile(local, remoteCol, localModified, remoteModified)
	if err != nil {
		return nil, err
	}
	s.commit(merged)
	return merged, nil
}

// commit records a successfully synchronized collection: fingerprint,
// committed snapshot, mirror file, tombstone GC, and the idle status.
func (s *Syncer) commit(merged task.Collection) {
	fp := task.Fingerprint(merged)

	s.mu.Lock()
	s.committed = merged.Clone()
	s.fingerprint = fp
	s.lastSyncTime = time.Now()
	if s.conflict != nil {
		// A clean sync supersedes whatever divergence was pending.
		s.conflict = nil
		s.persistConflictLocked()
	}
	s.clearConfirmedTombstonesLocked(merged)
	if s.kv != nil {
		if err := s.kv.Set(store.KeyLastSyncFingerprint, fp); err != nil {
			s.config.Logger.Printf("Failed to persist fingerprint: %v", err)
		}
	}
	s.setStatusLocked(StatusIdle, "")
	s.mu.Unlock()

	if err := localfile.Save(s.mirrorPath, merged); err != nil {
		s.config.Logger.Printf("Failed to write local mirror: %v", err)
	}
	if s.OnCommit != nil {
		go s.OnCommit(merged.Clone())
	}
}

// clearConfirmedTombstonesLocked drops tombstones for ids the committed
// merge no longer carries: the write that just happened confirmed the
// remote no longer holds them.
func (s *Syncer) clearConfirmedTombstonesLocked(merged task.Collection) {
	changed := false
	for id := range s.deleted {
		if _, ok := merged[id]; !ok {
			delete(s.deleted, id)
			changed = true
		}
	}
	if changed {
		s.persistTombstonesLocked()
	}
}

// fail records a flush failure, keeping optimistic local state.
func (s *Syncer) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(StatusError, userMessage(err))
}

// withRetry runs op with exponential backoff. Authentication and parse
// failures are not retriable; everything else is treated as transient.
func (s *Syncer) withRetry(ctx context.Context, op func(context.Context) error) error {
	attempts := s.config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := s.config.BackoffBase << (attempt - 1)
			if delay > s.config.BackoffCap {
				delay = s.config.BackoffCap
			}
			s.config.Logger.Printf("Retrying in %v (attempt %d/%d): %v", delay, attempt+1, attempts, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, remote.ErrUnauthorized) || errors.Is(err, remote.ErrUnreadable) {
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

// latestModified returns the greatest per-record modification instant.
func latestModified(col task.Collection) int64 {
	var latest int64
	for _, t := range col {
		if m := t.ModifiedOrCreated(); m > latest {
			latest = m
		}
	}
	return latest
}
