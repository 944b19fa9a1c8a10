package models

import "time"

// Event types written to the bridge event log.
const (
	EventConnect       = "CONNECT"
	EventDisconnect    = "DISCONNECT"
	EventCommand       = "COMMAND"
	EventCommandFailed = "COMMAND_FAILED"
	EventStopped       = "STOPPED"
)

// BridgeEvent is a single operational log entry.
type BridgeEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`                // CONNECT | DISCONNECT | COMMAND | COMMAND_FAILED | STOPPED
	DeviceID    string    `json:"device_id,omitempty"` // empty for session-wide events
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
