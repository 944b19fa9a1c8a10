package service

import (
	"context"

	"blinds_bridge/internal/models"
)

// StateReader is the read side of the snapshot table.
type StateReader interface {
	Get(id string) (models.DeviceSnapshot, error)
	List() []models.DeviceSnapshot
	Subscribe() (<-chan models.DeviceSnapshot, func())
}

type AccessoryService struct {
	states StateReader
}

func NewAccessoryService(states StateReader) *AccessoryService {
	return &AccessoryService{states: states}
}

// GetSnapshot returns the full snapshot, or ErrDeviceNotFound.
func (s *AccessoryService) GetSnapshot(ctx context.Context, deviceID string) (models.DeviceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.DeviceSnapshot{}, err
	}
	return s.states.Get(deviceID)
}

func (s *AccessoryService) ListSnapshots(ctx context.Context) ([]models.DeviceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.states.List(), nil
}

func (s *AccessoryService) GetCurrentPosition(ctx context.Context, deviceID string) (int, error) {
	snap, err := s.GetSnapshot(ctx, deviceID)
	return snap.CurrentPosition, err
}

func (s *AccessoryService) GetTargetPosition(ctx context.Context, deviceID string) (int, error) {
	snap, err := s.GetSnapshot(ctx, deviceID)
	return snap.TargetPosition, err
}

func (s *AccessoryService) GetBatteryLevel(ctx context.Context, deviceID string) (int, error) {
	snap, err := s.GetSnapshot(ctx, deviceID)
	return snap.BatteryLevel, err
}

// GetLowBatteryFlag is true iff battery <= the device's threshold.
func (s *AccessoryService) GetLowBatteryFlag(ctx context.Context, deviceID string) (bool, error) {
	snap, err := s.GetSnapshot(ctx, deviceID)
	if err != nil {
		return false, err
	}
	return snap.LowBattery(), nil
}

func (s *AccessoryService) Subscribe() (<-chan models.DeviceSnapshot, func()) {
	return s.states.Subscribe()
}
