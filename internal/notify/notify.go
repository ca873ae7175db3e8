// Package notify implements the notification scheduler: a cooperative,
// periodic inspection of the task collection that emits user-visible events
// under de-duplication, snooze, and batching rules.
//
// The event sink is external; when it rejects an event the channel's
// last-sent bookkeeping is not advanced, so the next tick retries. The
// scheduler itself never propagates errors upward.
package notify

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"
)

// Channel identifies one notification stream.
type Channel string

const (
	ChannelAged     Channel = "aged"
	ChannelPriority Channel = "priority"
	ChannelDigest   Channel = "digest"
)

// Detection thresholds.
const (
	AgedOld      = 7 * 24 * time.Hour
	AgedVeryOld  = 30 * 24 * time.Hour
	UrgentAge    = 24 * time.Hour      // priority 5
	ImportantAge = 3 * 24 * time.Hour  // priority 4
)

// Minimum re-notify interval per channel.
var renotifyInterval = map[Channel]time.Duration{
	ChannelAged:     24 * time.Hour,
	ChannelPriority: 4 * time.Hour,
	ChannelDigest:   24 * time.Hour,
}

// DigestWindow is the tolerance around the configured digest time.
const DigestWindow = 30 * time.Minute

// Event is one user-visible notification.
type Event struct {
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Tag     string    `json:"tag"`
	Data    EventData `json:"data"`
	Actions []Action  `json:"actions"`
}

// EventData is the payload used for deep-linking.
type EventData struct {
	Type    string         `json:"type"`
	TodoIDs []string       `json:"todoIds"`
	DaysOld map[string]int `json:"daysOld,omitempty"`
}

// Action is one user-selectable response on an event.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Sink receives emitted events. Implementations live outside the core.
type Sink interface {
	Send(Event) error
}

// Settings are the user's notification preferences, persisted under the
// notificationSettings durable key.
type Settings struct {
	AgedEnabled     bool             `json:"agedEnabled"`
	PriorityEnabled bool             `json:"priorityEnabled"`
	DigestEnabled   bool             `json:"digestEnabled"`
	DigestTime      string           `json:"digestTime"` // "HH:MM"
	Snoozes         map[string]int64 `json:"snoozes,omitempty"`
}

// DefaultSettings enables every channel with a 9am digest.
func DefaultSettings() Settings {
	return Settings{
		AgedEnabled:     true,
		PriorityEnabled: true,
		DigestEnabled:   true,
		DigestTime:      "09:00",
	}
}

// SnoozeKey identifies a snooze entry: one channel applied to one specific
// id set. The ids are hashed so the settings blob stays small.
func SnoozeKey(channel Channel, ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(sorted, "\n")))
	return fmt.Sprintf("%s:%016x", channel, h.Sum64())
}

// Snoozed reports whether the channel is snoozed for this exact id set at
// the given instant.
func (s Settings) Snoozed(channel Channel, ids []string, now time.Time) bool {
	until, ok := s.Snoozes[SnoozeKey(channel, ids)]
	return ok && now.UnixMilli() < until
}

// Enabled reports whether the channel is switched on.
func (s Settings) Enabled(channel Channel) bool {
	switch channel {
	case ChannelAged:
		return s.AgedEnabled
	case ChannelPriority:
		return s.PriorityEnabled
	case ChannelDigest:
		return s.DigestEnabled
	}
	return false
}
