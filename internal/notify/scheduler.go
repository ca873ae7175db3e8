package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/richardjkendall/todoapp/internal/store"
	"github.com/richardjkendall/todoapp/internal/task"
)

// DefaultPeriod is the scheduler tick interval.
const DefaultPeriod = 30 * time.Minute

// DefaultSpacing separates sequential events emitted in the same tick.
const DefaultSpacing = 3 * time.Second

// lastSentKey maps each channel to its durable bookkeeping key.
var lastSentKey = map[Channel]string{
	ChannelAged:     store.KeyLastAgedNotification,
	ChannelPriority: store.KeyLastPriorityNotification,
	ChannelDigest:   store.KeyLastDailyDigest,
}

// Config holds scheduler tuning.
type Config struct {
	Period  time.Duration
	Spacing time.Duration
	Logger  *log.Logger

	// Now is the clock; tests substitute a fake.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Period:  DefaultPeriod,
		Spacing: DefaultSpacing,
		Logger:  log.New(os.Stderr, "[notify] ", log.LstdFlags),
		Now:     time.Now,
	}
}

// Scheduler periodically inspects the collection and emits events.
type Scheduler struct {
	kv     *store.Store
	sink   Sink
	getter func() task.Collection
	config *Config
}

// New creates a scheduler. The getter is injected by the orchestrator and
// must return the current committed collection.
func New(kv *store.Store, sink Sink, getter func() task.Collection, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Period <= 0 {
		config.Period = DefaultPeriod
	}
	return &Scheduler{kv: kv, sink: sink, getter: getter, config: config}
}

// Run ticks until ctx is cancelled. The interval handle is scoped to this
// call and released on return.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one inspection pass. Errors are logged and swallowed; the
// scheduler never propagates them upward.
func (s *Scheduler) Tick() {
	now := s.config.Now()
	todos := s.getter()
	settings := s.Settings()

	type firing struct {
		channel Channel
		event   Event
	}
	var fires []firing

	// Fixed priority > aged > digest ordering.
	for _, channel := range []Channel{ChannelPriority, ChannelAged, ChannelDigest} {
		event, ok := s.detect(channel, todos, settings, now)
		if !ok {
			continue
		}
		if !s.shouldNotify(channel, settings, event.Data.TodoIDs, now) {
			continue
		}
		fires = append(fires, firing{channel: channel, event: event})
	}
	if len(fires) == 0 {
		return
	}

	if len(fires) >= 3 {
		combined := combineEvents(fires[0].event, fires[1].event, fires[2].event)
		if err := s.sink.Send(combined); err != nil {
			s.config.Logger.Printf("Sink rejected combined event: %v", err)
			return
		}
		for _, f := range fires {
			s.markSent(f.channel, now)
		}
		return
	}

	for i, f := range fires {
		if i > 0 && s.config.Spacing > 0 {
			time.Sleep(s.config.Spacing)
		}
		if err := s.sink.Send(f.event); err != nil {
			// Not advancing last-sent means the next tick retries.
			s.config.Logger.Printf("Sink rejected %s event: %v", f.channel, err)
			continue
		}
		s.markSent(f.channel, now)
	}
}

// ShouldNotify reports whether the channel would pass its gates right now
// for the given id set.
func (s *Scheduler) ShouldNotify(channel Channel, ids []string) bool {
	return s.shouldNotify(channel, s.Settings(), ids, s.config.Now())
}

func (s *Scheduler) shouldNotify(channel Channel, settings Settings, ids []string, now time.Time) bool {
	if !settings.Enabled(channel) {
		return false
	}
	if settings.Snoozed(channel, ids, now) {
		return false
	}

	lastSent, err := s.kv.GetTime(lastSentKey[channel])
	if err != nil {
		s.config.Logger.Printf("Failed to read last-sent for %s: %v", channel, err)
		return false
	}
	if !lastSent.IsZero() && now.Sub(lastSent) < renotifyInterval[channel] {
		return false
	}

	if channel == ChannelDigest {
		if !inDigestWindow(settings.DigestTime, now) {
			return false
		}
		// only once per calendar day
		ly, lm, ld := lastSent.Date()
		ny, nm, nd := now.Date()
		if !lastSent.IsZero() && ly == ny && lm == nm && ld == nd {
			return false
		}
	}
	return true
}

// Snooze suppresses a channel for the given id set until the given instant
// and persists the updated settings.
func (s *Scheduler) Snooze(channel Channel, ids []string, until time.Time) error {
	settings := s.Settings()
	if settings.Snoozes == nil {
		settings.Snoozes = make(map[string]int64)
	}
	settings.Snoozes[SnoozeKey(channel, ids)] = until.UnixMilli()
	return s.SaveSettings(settings)
}

// Settings loads the persisted preferences, falling back to defaults.
func (s *Scheduler) Settings() Settings {
	var settings Settings
	err := s.kv.GetJSON(store.KeyNotificationSettings, &settings)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultSettings()
	}
	if err != nil {
		s.config.Logger.Printf("Failed to load notification settings: %v", err)
		return DefaultSettings()
	}
	return settings
}

// SaveSettings persists the preferences.
func (s *Scheduler) SaveSettings(settings Settings) error {
	return s.kv.SetJSON(store.KeyNotificationSettings, settings)
}

func (s *Scheduler) markSent(channel Channel, now time.Time) {
	if err := s.kv.SetTime(lastSentKey[channel], now); err != nil {
		s.config.Logger.Printf("Failed to record last-sent for %s: %v", channel, err)
	}
}

// Detect evaluates one channel against the current collection without the
// de-dup and snooze gates. Used to preview what a channel would announce.
func (s *Scheduler) Detect(channel Channel, now time.Time) (Event, bool) {
	return s.detect(channel, s.getter(), s.Settings(), now)
}

// detect builds the channel's event from the collection, or reports that
// nothing fired.
func (s *Scheduler) detect(channel Channel, todos task.Collection, settings Settings, now time.Time) (Event, bool) {
	switch channel {
	case ChannelAged:
		return detectAged(todos, now)
	case ChannelPriority:
		return detectPriority(todos, now)
	case ChannelDigest:
		return detectDigest(todos, now)
	}
	return Event{}, false
}

func detectAged(todos task.Collection, now time.Time) (Event, bool) {
	var ids []string
	daysOld := make(map[string]int)
	veryOld := 0

	for _, t := range todos.Sorted() {
		if t.Completed {
			continue
		}
		age := t.Age(now)
		if age <= AgedOld {
			continue
		}
		ids = append(ids, t.ID)
		daysOld[t.ID] = int(age.Hours() / 24)
		if age > AgedVeryOld {
			veryOld++
		}
	}
	if len(ids) == 0 {
		return Event{}, false
	}

	body := fmt.Sprintf("%d task(s) untouched for over a week", len(ids))
	if veryOld > 0 {
		body = fmt.Sprintf("%s, %d for over a month", body, veryOld)
	}
	return Event{
		Title: "Aging tasks",
		Body:  body,
		Tag:   string(ChannelAged),
		Data:  EventData{Type: string(ChannelAged), TodoIDs: ids, DaysOld: daysOld},
		Actions: []Action{
			{Action: "view_overdue", Title: "View"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}, true
}

func detectPriority(todos task.Collection, now time.Time) (Event, bool) {
	var urgent, important []string

	for _, t := range todos.Sorted() {
		if t.Completed {
			continue
		}
		age := t.Age(now)
		switch {
		case t.Priority == 5 && age > UrgentAge:
			urgent = append(urgent, t.ID)
		case t.Priority == 4 && age > ImportantAge:
			important = append(important, t.ID)
		}
	}
	if len(urgent) == 0 && len(important) == 0 {
		return Event{}, false
	}

	body := ""
	switch {
	case len(urgent) > 0 && len(important) > 0:
		body = fmt.Sprintf("%d urgent and %d important task(s) need attention", len(urgent), len(important))
	case len(urgent) > 0:
		body = fmt.Sprintf("%d urgent task(s) waiting over a day", len(urgent))
	default:
		body = fmt.Sprintf("%d important task(s) waiting over three days", len(important))
	}
	return Event{
		Title: "High-priority tasks",
		Body:  body,
		Tag:   string(ChannelPriority),
		Data:  EventData{Type: string(ChannelPriority), TodoIDs: append(urgent, important...)},
		Actions: []Action{
			{Action: "view_priority", Title: "View"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}, true
}

func detectDigest(todos task.Collection, now time.Time) (Event, bool) {
	pending, completed, highPriority := 0, 0, 0
	var ids []string
	for _, t := range todos.Sorted() {
		if t.Completed {
			completed++
			continue
		}
		pending++
		ids = append(ids, t.ID)
		if t.Priority >= 4 {
			highPriority++
		}
	}
	if pending == 0 && completed == 0 {
		return Event{}, false
	}

	return Event{
		Title: "Daily digest",
		Body:  fmt.Sprintf("%d pending (%d high priority), %d completed", pending, highPriority, completed),
		Tag:   string(ChannelDigest),
		Data:  EventData{Type: string(ChannelDigest), TodoIDs: ids},
		Actions: []Action{
			{Action: "view", Title: "Open"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}, true
}

// combineEvents folds three same-tick events into one summary.
func combineEvents(events ...Event) Event {
	var ids []string
	seen := make(map[string]bool)
	body := ""
	for i, e := range events {
		if i > 0 {
			body += " · "
		}
		body += e.Body
		for _, id := range e.Data.TodoIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return Event{
		Title: "Task updates",
		Body:  body,
		Tag:   "combined",
		Data:  EventData{Type: "combined", TodoIDs: ids},
		Actions: []Action{
			{Action: "view", Title: "Open"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}
}

// inDigestWindow reports whether now falls inside the 30-minute window
// around the configured HH:MM, in the process's local time zone.
func inDigestWindow(digestTime string, now time.Time) bool {
	var hh, mm int
	if _, err := fmt.Sscanf(digestTime, "%d:%d", &hh, &mm); err != nil {
		return false
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	diff := now.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= DigestWindow/2
}
