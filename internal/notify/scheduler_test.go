package notify

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/richardjkendall/todoapp/internal/store"
	"github.com/richardjkendall/todoapp/internal/task"
)

type fakeSink struct {
	events []Event
	err    error
}

func (f *fakeSink) Send(e Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

// testClock is a settable clock.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func setupScheduler(t *testing.T, todos task.Collection) (*Scheduler, *fakeSink, *testClock, *store.Store) {
	t.Helper()

	kv, err := store.Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	sink := &fakeSink{}
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)}
	sched := New(kv, sink, func() task.Collection { return todos }, &Config{
		Period:  time.Minute,
		Spacing: 0,
		Logger:  log.New(os.Stderr, "[test] ", 0),
		Now:     clock.Now,
	})
	return sched, sink, clock, kv
}

func agedTask(id string, daysOld int, now time.Time) *task.Task {
	ms := now.Add(-time.Duration(daysOld) * 24 * time.Hour).UnixMilli()
	return &task.Task{ID: id, Text: id, Priority: 3, Timestamp: ms, LastModified: ms}
}

func TestAgedDetection(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	todos := task.FromSlice([]*task.Task{
		agedTask("fresh", 2, now),
		agedTask("old", 10, now),
		agedTask("ancient", 40, now),
	})

	sched, sink, _, _ := setupScheduler(t, todos)
	sched.Tick()

	if len(sink.events) == 0 {
		t.Fatal("expected an aged event")
	}
	var aged *Event
	for i := range sink.events {
		if sink.events[i].Tag == string(ChannelAged) {
			aged = &sink.events[i]
		}
	}
	if aged == nil {
		t.Fatalf("no aged event among %+v", sink.events)
	}
	if len(aged.Data.TodoIDs) != 2 {
		t.Errorf("expected 2 aged ids, got %v", aged.Data.TodoIDs)
	}
	if aged.Data.DaysOld["ancient"] != 40 {
		t.Errorf("expected daysOld 40 for ancient, got %d", aged.Data.DaysOld["ancient"])
	}
}

func TestCompletedTasksNeverFire(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	done := agedTask("done", 40, now)
	done.Completed = true
	done.Priority = 5

	sched, sink, _, _ := setupScheduler(t, task.FromSlice([]*task.Task{done}))
	sched.Tick()

	for _, e := range sink.events {
		if e.Tag == string(ChannelAged) || e.Tag == string(ChannelPriority) {
			t.Errorf("completed task fired %s", e.Tag)
		}
	}
}

func TestPriorityThresholds(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	urgent := agedTask("urgent", 2, now) // p5 older than 1d
	urgent.Priority = 5
	tooFresh := agedTask("fresh-p5", 0, now)
	tooFresh.Priority = 5
	important := agedTask("important", 4, now) // p4 older than 3d
	important.Priority = 4

	sched, sink, _, _ := setupScheduler(t, task.FromSlice([]*task.Task{urgent, tooFresh, important}))
	sched.Tick()

	var got *Event
	for i := range sink.events {
		if sink.events[i].Tag == string(ChannelPriority) {
			got = &sink.events[i]
		}
	}
	if got == nil {
		t.Fatal("expected a priority event")
	}
	if len(got.Data.TodoIDs) != 2 {
		t.Errorf("expected exactly the urgent and important ids, got %v", got.Data.TodoIDs)
	}
	hasAction := false
	for _, a := range got.Actions {
		if a.Action == "view_priority" {
			hasAction = true
		}
	}
	if !hasAction {
		t.Error("priority event should carry the view_priority action")
	}
}

func TestRenotifyGate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	todos := task.FromSlice([]*task.Task{agedTask("old", 10, now)})
	sched, _, clock, kv := setupScheduler(t, todos)

	// last aged notification two hours ago: gated
	if err := kv.SetTime(store.KeyLastAgedNotification, now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if sched.ShouldNotify(ChannelAged, []string{"old"}) {
		t.Error("aged channel should be gated 2h after the last notification")
	}

	// 25 hours later: allowed
	clock.now = now.Add(23 * time.Hour)
	if !sched.ShouldNotify(ChannelAged, []string{"old"}) {
		t.Error("aged channel should fire once 24h have passed")
	}
}

func TestSnoozeGate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	sched, _, clock, _ := setupScheduler(t, task.Collection{})

	ids := []string{"a", "b"}
	if err := sched.Snooze(ChannelAged, ids, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("Snooze failed: %v", err)
	}

	if sched.ShouldNotify(ChannelAged, ids) {
		t.Error("snoozed id set should be gated")
	}
	if !sched.ShouldNotify(ChannelAged, []string{"a", "c"}) {
		t.Error("a different id set must not be affected by the snooze")
	}

	clock.now = now.Add(3 * time.Hour)
	if !sched.ShouldNotify(ChannelAged, ids) {
		t.Error("snooze should expire")
	}
}

func TestChannelDisabled(t *testing.T) {
	sched, _, _, _ := setupScheduler(t, task.Collection{})

	settings := DefaultSettings()
	settings.AgedEnabled = false
	if err := sched.SaveSettings(settings); err != nil {
		t.Fatal(err)
	}
	if sched.ShouldNotify(ChannelAged, nil) {
		t.Error("disabled channel should never notify")
	}
}

func TestDigestWindowAndOncePerDay(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 5, 0, 0, time.Local)
	todos := task.FromSlice([]*task.Task{agedTask("pending", 1, now)})
	sched, _, clock, kv := setupScheduler(t, todos)
	clock.now = now

	// inside the 09:00 window
	if !sched.ShouldNotify(ChannelDigest, nil) {
		t.Error("expected digest inside its window")
	}

	// outside the window
	clock.now = time.Date(2025, 6, 1, 13, 0, 0, 0, time.Local)
	if sched.ShouldNotify(ChannelDigest, nil) {
		t.Error("digest must not fire outside its window")
	}

	// yesterday's digest does not gate today's
	clock.now = now
	if err := kv.SetTime(store.KeyLastDailyDigest, now.Add(-26*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if !sched.ShouldNotify(ChannelDigest, nil) {
		t.Error("digest from yesterday should not gate today")
	}
}

func TestSinkFailureRetriesNextTick(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	todos := task.FromSlice([]*task.Task{agedTask("old", 10, now)})
	sched, sink, _, kv := setupScheduler(t, todos)

	sink.err = errors.New("sink down")
	sched.Tick()

	if last, _ := kv.GetTime(store.KeyLastAgedNotification); !last.IsZero() {
		t.Error("failed emission must not advance last-sent")
	}

	sink.err = nil
	sched.Tick()
	if len(sink.events) == 0 {
		t.Fatal("expected a retry on the next tick")
	}
	if last, _ := kv.GetTime(store.KeyLastAgedNotification); last.IsZero() {
		t.Error("successful emission should advance last-sent")
	}
}

func TestCombinedEventWhenAllChannelsFire(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 5, 0, 0, time.Local)
	urgent := agedTask("urgent", 10, now)
	urgent.Priority = 5

	sched, sink, clock, _ := setupScheduler(t, task.FromSlice([]*task.Task{urgent}))
	clock.now = now

	sched.Tick()
	if len(sink.events) != 1 {
		t.Fatalf("three firing channels should combine into 1 event, got %d", len(sink.events))
	}
	if sink.events[0].Tag != "combined" {
		t.Errorf("expected combined tag, got %q", sink.events[0].Tag)
	}

	// every channel's last-sent advanced, so nothing fires again
	sink.events = nil
	sched.Tick()
	if len(sink.events) != 0 {
		t.Errorf("expected full de-dup after the combined event, got %d", len(sink.events))
	}
}
