package gateway

import (
	"errors"
	"fmt"
)

// ConnectionKind classifies why Connect failed.
type ConnectionKind int

const (
	AuthFailed ConnectionKind = iota + 1
	ChannelRefused
	ConnectTimeout
)

func (k ConnectionKind) String() string {
	switch k {
	case AuthFailed:
		return "auth_failed"
	case ChannelRefused:
		return "channel_refused"
	case ConnectTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ConnectionError is returned by Session.Connect.
type ConnectionError struct {
	Kind ConnectionKind
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "gateway connect: " + e.Kind.String()
	}
	return fmt.Sprintf("gateway connect: %s: %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandKind classifies why a command did not complete.
type CommandKind int

const (
	NotConnected CommandKind = iota + 1
	GatewayRejected
	CommandTimeout
)

func (k CommandKind) String() string {
	switch k {
	case NotConnected:
		return "not_connected"
	case GatewayRejected:
		return "gateway_rejected"
	case CommandTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// CommandError is returned by Session.Command.
type CommandError struct {
	Kind     CommandKind
	DeviceID string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway command %s: %s", e.DeviceID, e.Kind)
	}
	return fmt.Sprintf("gateway command %s: %s: %v", e.DeviceID, e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsConnectionKind reports whether err is a *ConnectionError of kind k.
func IsConnectionKind(err error, k ConnectionKind) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Kind == k
}

// IsCommandKind reports whether err is a *CommandError of kind k.
func IsCommandKind(err error, k CommandKind) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Kind == k
}
