package syncer

import (
	"context"
	"time"

	"github.com/richardjkendall/todoapp/internal/merge"
	"github.com/richardjkendall/todoapp/internal/remote"
	"github.com/richardjkendall/todoapp/internal/task"
)

// ConflictInfo describes a reconciliation that needs user input. It carries
// both full collections so the decision can be applied without another
// remote read.
type ConflictInfo struct {
	Conflicts      []merge.Conflict
	Local          task.Collection
	Remote         task.Collection
	LocalModified  int64
	RemoteModified int64
	Timestamp      time.Time
	Kind           string
}

// Choice selects how a pending conflict is settled.
type Choice string

const (
	ChoiceKeepLocal  Choice = "keep-local"
	ChoiceKeepRemote Choice = "keep-remote"
	ChoicePerField   Choice = "per-field-choices"
)

// Decision is the user's answer to a pending conflict. For ChoicePerField,
// Fields maps conflict id -> field name -> winning side; fields not listed
// keep the local value.
type Decision struct {
	Choice Choice
	Fields map[string]map[string]merge.Source
}

// ResolveConflict applies the decision to the pending conflict, clears it,
// and commits the result to the remote replica and the local mirror.
func (s *Syncer) ResolveConflict(ctx context.Context, decision Decision) error {
	s.mu.Lock()
	info := s.conflict
	if info == nil {
		s.mu.Unlock()
		return ErrNoConflict
	}
	s.conflict = nil
	s.persistConflictLocked()
	deleted := make(map[string]bool, len(s.deleted))
	for id := range s.deleted {
		deleted[id] = true
	}
	s.setStatusLocked(StatusSaving, "")
	s.mu.Unlock()

	// Re-merge the clean part, then settle each escalated conflict per
	// the decision.
	final, _ := merge.Merge(info.Local, info.Remote, deleted)
	for _, c := range info.Conflicts {
		switch decision.Choice {
		case ChoiceKeepLocal:
			final[c.ID] = c.Local.Clone()
		case ChoiceKeepRemote:
			final[c.ID] = c.Remote.Clone()
		case ChoicePerField:
			final[c.ID] = merge.ApplyFieldChoices(c, decision.Fields[c.ID])
		}
	}

	// Without a configured remote the settled collection commits straight
	// to the local mirror, matching flush.
	if s.remote == nil {
		s.commit(final)
		return nil
	}

	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.remote.Save(ctx, remote.NewDocument(final, time.Now()))
	})
	if err != nil {
		// The decision is applied locally either way; the next save
		// retries the remote write because the fingerprint was not
		// advanced.
		s.mu.Lock()
		s.committed = final.Clone()
		s.setStatusLocked(StatusError, userMessage(err))
		s.mu.Unlock()
		return err
	}

	s.commit(final)
	return nil
}

// RollbackOptimisticChanges abandons any pending debounced save and
// pending conflict, reverting to the last successfully committed snapshot.
func (s *Syncer) RollbackOptimisticChanges() task.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.conflict = nil
	s.persistConflictLocked()
	s.setStatusLocked(StatusIdle, "")
	return s.committed.Clone()
}
