package syncer

// Mode selects where the collection of record lives.
type Mode string

const (
	// ModeLocal keeps everything on this device.
	ModeLocal Mode = "local"
	// ModeCloud mirrors the collection to the remote replica.
	ModeCloud Mode = "cloud"
)

// Status is the orchestrator's externally visible sync state.
//
// Transitions: idle -> saving -> idle; saving -> conflict -> (user action)
// -> saving -> idle; any -> offline -> (reconnect) -> saving; any -> error
// -> (retry) -> saving. There are no terminal states.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSaving   Status = "saving"
	StatusLoading  Status = "loading"
	StatusError    Status = "error"
	StatusConflict Status = "conflict"
	StatusOffline  Status = "offline"
)
