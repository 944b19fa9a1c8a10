package service

import "time"

// LogFilter supports history filtering by time range, type and device.
type LogFilter struct {
	From     time.Time // inclusive; zero means no lower bound
	To       time.Time // inclusive; zero means no upper bound
	Type     string    // "", "CONNECT", "DISCONNECT", "COMMAND", "COMMAND_FAILED", "STOPPED"
	DeviceID string
	Limit    int
}
