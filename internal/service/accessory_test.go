package service

import (
	"context"
	"errors"
	"testing"

	"blinds_bridge/internal/estimator"
	"blinds_bridge/internal/models"
	"blinds_bridge/internal/store"
)

func newAccessoryStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New([]store.Device{{ID: "65537", Name: "Bedroom", LowBatteryThreshold: 10}})
	_, err := st.Reconcile(models.DeviceUpdate{
		DeviceID:        "65537",
		PositionPercent: models.IntPtr(30),
		BatteryPercent:  models.IntPtr(10),
	}, estimator.Estimate)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return st
}

func TestAccessoryService_Reads(t *testing.T) {
	t.Parallel()
	svc := NewAccessoryService(newAccessoryStore(t))
	ctx := context.Background()

	if v, err := svc.GetCurrentPosition(ctx, "65537"); err != nil || v != 30 {
		t.Fatalf("current = %d, %v", v, err)
	}
	if v, err := svc.GetTargetPosition(ctx, "65537"); err != nil || v != 30 {
		t.Fatalf("target = %d, %v", v, err)
	}
	if v, err := svc.GetBatteryLevel(ctx, "65537"); err != nil || v != 10 {
		t.Fatalf("battery = %d, %v", v, err)
	}
	low, err := svc.GetLowBatteryFlag(ctx, "65537")
	if err != nil || !low {
		t.Fatalf("battery == threshold must be low, got %v, %v", low, err)
	}

	all, err := svc.ListSnapshots(ctx)
	if err != nil || len(all) != 1 || all[0].Name != "Bedroom" {
		t.Fatalf("ListSnapshots = %+v, %v", all, err)
	}
}

func TestAccessoryService_UnknownDevice(t *testing.T) {
	t.Parallel()
	svc := NewAccessoryService(newAccessoryStore(t))

	if _, err := svc.GetCurrentPosition(context.Background(), "ghost"); !errors.Is(err, models.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := svc.GetLowBatteryFlag(context.Background(), "ghost"); !errors.Is(err, models.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestAccessoryService_CanceledContext(t *testing.T) {
	t.Parallel()
	svc := NewAccessoryService(newAccessoryStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.GetSnapshot(ctx, "65537"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
