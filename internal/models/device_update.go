package models

import "time"

// DeviceUpdate is one inbound device-updated push, already converted to
// accessory coordinates. Nil fields were not reported this cycle.
type DeviceUpdate struct {
	DeviceID        string    `json:"device_id"`
	PositionPercent *int      `json:"position_percent,omitempty"`
	BatteryPercent  *int      `json:"battery_percent,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// HasPosition reports whether the update carries a position reading.
func (u DeviceUpdate) HasPosition() bool { return u.PositionPercent != nil }

// IntPtr is a small helper for building updates.
func IntPtr(v int) *int { return &v }
