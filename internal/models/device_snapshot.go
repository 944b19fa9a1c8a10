package models

import "time"

// Position and battery bounds shared by every characteristic the bridge exposes.
const (
	MinPercent = 0
	MaxPercent = 100

	DefaultLowBatteryThreshold = 10
)

// PendingCommand is an outbound target that has been requested but not yet
// acknowledged by the gateway.
type PendingCommand struct {
	Token          uint64    `json:"-"`
	Target         int       `json:"target"`
	PreviousTarget int       `json:"previous_target"`
	IssuedAt       time.Time `json:"issued_at"`
}

// DeviceSnapshot is the in-memory state record for one physical actuator.
// Positions are in accessory coordinates (0 = closed, 100 = open).
type DeviceSnapshot struct {
	DeviceID            string          `json:"device_id"`
	Name                string          `json:"name"`
	CurrentPosition     int             `json:"current_position"`
	// PreviousPosition is estimator input only. It equals CurrentPosition once a
	// reconcile cycle finishes, so it is not serialized.
	PreviousPosition    int             `json:"-"`
	TargetPosition      int             `json:"target_position"`
	BatteryLevel        int             `json:"battery_level"`
	LowBatteryThreshold int             `json:"low_battery_threshold"`
	Observed            bool            `json:"observed"` // a position has been reported at least once
	Pending             *PendingCommand `json:"pending,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// LowBattery reports whether the battery is at or below the configured threshold.
func (s DeviceSnapshot) LowBattery() bool {
	return s.BatteryLevel <= s.LowBatteryThreshold
}

// Clone returns a deep copy safe to hand out to readers.
func (s DeviceSnapshot) Clone() DeviceSnapshot {
	if s.Pending != nil {
		p := *s.Pending
		s.Pending = &p
	}
	return s
}
