package service

import (
	"context"
	"time"

	"blinds_bridge/internal/models"
	"blinds_bridge/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Accessory is the read side of every registered blind. Reads never touch
// the gateway; they return the latest committed snapshot.
type Accessory interface {
	GetCurrentPosition(ctx context.Context, deviceID string) (int, error)
	GetTargetPosition(ctx context.Context, deviceID string) (int, error)
	GetBatteryLevel(ctx context.Context, deviceID string) (int, error)
	GetLowBatteryFlag(ctx context.Context, deviceID string) (bool, error)
	GetSnapshot(ctx context.Context, deviceID string) (models.DeviceSnapshot, error)
	ListSnapshots(ctx context.Context) ([]models.DeviceSnapshot, error)
	Subscribe() (<-chan models.DeviceSnapshot, func())
}

// Control is the write side: target position requests.
type Control interface {
	SetTargetPosition(ctx context.Context, deviceID string, value int) error
}

// EventLog exposes the append-only operational log with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.BridgeEvent, error)
}

// Service aggregates every use case the transports need.
type Service struct {
	Accessory
	Control
	EventLog
	Authorization
}

// AuthConfig configures controller account tokens.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// NewService wires repositories and the bridge's state and command paths
// into the concrete services.
func NewService(repos *repository.Repository, states StateReader, commands Dispatcher, auth AuthConfig) *Service {
	return &Service{
		Accessory:     NewAccessoryService(states),
		Control:       NewControlService(states, commands, repos.EventRepo),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, auth.SigningKey, auth.TokenTTL),
	}
}
