// Package store holds the accessory-visible state of every registered blind.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"blinds_bridge/internal/models"
)

// ErrStaleCommand is returned when a confirm or revert refers to a command
// that has since been replaced by a newer one.
var ErrStaleCommand = errors.New("command superseded")

const subscriberBuffer = 32

// Device is the static registration of one blind.
type Device struct {
	ID                  string
	Name                string
	LowBatteryThreshold int
}

// EstimateFunc infers the new target from previous, current and existing target.
type EstimateFunc func(previous, current, target int) int

// Store is a single-writer, multi-reader snapshot table keyed by device id.
// Every write is applied under one lock, so readers never see a partial update.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*models.DeviceSnapshot
	order   []string
	token   uint64
	now     func() time.Time

	subMu  sync.Mutex
	subs   map[int]chan models.DeviceSnapshot
	nextID int
}

// New registers devices with an all-zero, unobserved snapshot.
func New(devices []Device) *Store {
	s := &Store{
		devices: make(map[string]*models.DeviceSnapshot, len(devices)),
		now:     time.Now,
		subs:    make(map[int]chan models.DeviceSnapshot),
	}
	for _, d := range devices {
		if _, ok := s.devices[d.ID]; ok {
			continue
		}
		threshold := d.LowBatteryThreshold
		if threshold <= 0 {
			threshold = models.DefaultLowBatteryThreshold
		}
		name := d.Name
		if name == "" {
			name = d.ID
		}
		s.devices[d.ID] = &models.DeviceSnapshot{
			DeviceID:            d.ID,
			Name:                name,
			LowBatteryThreshold: threshold,
		}
		s.order = append(s.order, d.ID)
	}
	return s
}

// Has reports whether id is registered.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.devices[id]
	return ok
}

// Get returns a copy of the snapshot for id.
func (s *Store) Get(id string) (models.DeviceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.devices[id]
	if !ok {
		return models.DeviceSnapshot{}, fmt.Errorf("%w: %s", models.ErrDeviceNotFound, id)
	}
	return snap.Clone(), nil
}

// List returns copies of every snapshot in registration order.
func (s *Store) List() []models.DeviceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DeviceSnapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.devices[id].Clone())
	}
	return out
}

// IDs returns registered device ids in registration order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// SetCurrent overwrites the current position.
func (s *Store) SetCurrent(id string, v int) error {
	if err := models.ValidatePercent("current_position", v); err != nil {
		return err
	}
	return s.mutate(id, func(snap *models.DeviceSnapshot) error {
		snap.CurrentPosition = v
		snap.Observed = true
		return nil
	})
}

// SetTarget overwrites the target position.
func (s *Store) SetTarget(id string, v int) error {
	if err := models.ValidatePercent("target_position", v); err != nil {
		return err
	}
	return s.mutate(id, func(snap *models.DeviceSnapshot) error {
		snap.TargetPosition = v
		return nil
	})
}

// SetBattery overwrites the battery level.
func (s *Store) SetBattery(id string, v int) error {
	if err := models.ValidatePercent("battery_level", v); err != nil {
		return err
	}
	return s.mutate(id, func(snap *models.DeviceSnapshot) error {
		snap.BatteryLevel = v
		return nil
	})
}

// Reconcile applies one device-updated push as a single cycle: estimate the
// target from the stored previous reading, store the new reading, then make it
// the previous reading for the next cycle. The first position ever reported
// seeds all three fields. Applying the same update twice yields the same
// snapshot as applying it once.
func (s *Store) Reconcile(u models.DeviceUpdate, estimate EstimateFunc) (models.DeviceSnapshot, error) {
	if u.PositionPercent != nil {
		if err := models.ValidatePercent("position", *u.PositionPercent); err != nil {
			return models.DeviceSnapshot{}, err
		}
	}
	if u.BatteryPercent != nil {
		if err := models.ValidatePercent("battery", *u.BatteryPercent); err != nil {
			return models.DeviceSnapshot{}, err
		}
	}

	var out models.DeviceSnapshot
	err := s.mutateAt(u.DeviceID, u.ReceivedAt, func(snap *models.DeviceSnapshot) error {
		if p := u.PositionPercent; p != nil {
			if !snap.Observed {
				snap.PreviousPosition = *p
				snap.TargetPosition = *p
				snap.Observed = true
			} else {
				snap.TargetPosition = estimate(snap.PreviousPosition, *p, snap.TargetPosition)
			}
			snap.CurrentPosition = *p
			snap.PreviousPosition = *p
		}
		if b := u.BatteryPercent; b != nil {
			snap.BatteryLevel = *b
		}
		out = snap.Clone()
		return nil
	})
	return out, err
}

// CollapseTarget sets target to current when the blind is still where it was
// when stop detection was armed. It reports whether the snapshot changed.
// A pending command owns the target, so nothing is collapsed while one is open.
func (s *Store) CollapseTarget(id string, position int) (bool, error) {
	changed := false
	err := s.mutate(id, func(snap *models.DeviceSnapshot) error {
		if snap.Pending != nil || snap.CurrentPosition != position {
			return nil
		}
		if snap.TargetPosition != snap.CurrentPosition {
			snap.TargetPosition = snap.CurrentPosition
			changed = true
		}
		return nil
	})
	return changed, err
}

// BeginCommand records target as the requested position and returns a token
// for the matching ConfirmCommand or RevertCommand. When a command is already
// pending its known-good target is carried over, so reverting the newer one
// still lands on the last authoritative value.
func (s *Store) BeginCommand(id string, target int) (uint64, error) {
	if err := models.ValidatePercent("target_position", target); err != nil {
		return 0, err
	}
	var token uint64
	err := s.mutate(id, func(snap *models.DeviceSnapshot) error {
		s.token++
		token = s.token
		known := snap.TargetPosition
		if snap.Pending != nil {
			known = snap.Pending.PreviousTarget
		}
		snap.Pending = &models.PendingCommand{
			Token:          token,
			Target:         target,
			PreviousTarget: known,
			IssuedAt:       s.now(),
		}
		snap.TargetPosition = target
		return nil
	})
	return token, err
}

// ConfirmCommand applies the acknowledged command optimistically: both current
// and target move to the requested value until the next push says otherwise.
func (s *Store) ConfirmCommand(id string, token uint64) error {
	return s.mutate(id, func(snap *models.DeviceSnapshot) error {
		if snap.Pending == nil || snap.Pending.Token != token {
			return ErrStaleCommand
		}
		snap.CurrentPosition = snap.Pending.Target
		snap.TargetPosition = snap.Pending.Target
		snap.Pending = nil
		return nil
	})
}

// RevertCommand restores the target that was in effect before the command.
func (s *Store) RevertCommand(id string, token uint64) error {
	return s.mutate(id, func(snap *models.DeviceSnapshot) error {
		if snap.Pending == nil || snap.Pending.Token != token {
			return ErrStaleCommand
		}
		snap.TargetPosition = snap.Pending.PreviousTarget
		snap.Pending = nil
		return nil
	})
}

func (s *Store) mutate(id string, fn func(*models.DeviceSnapshot) error) error {
	return s.mutateAt(id, time.Time{}, fn)
}

func (s *Store) mutateAt(id string, at time.Time, fn func(*models.DeviceSnapshot) error) error {
	s.mu.Lock()
	snap, ok := s.devices[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrDeviceNotFound, id)
	}

	// Work on a copy so a failed mutation leaves nothing behind.
	next := snap.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if equalState(*snap, next) {
		s.mu.Unlock()
		return nil
	}
	if at.IsZero() {
		at = s.now()
	}
	next.UpdatedAt = at
	*snap = next
	// publish under the write lock so subscribers see changes in commit order
	s.publish(next.Clone())
	s.mu.Unlock()
	return nil
}

func equalState(a, b models.DeviceSnapshot) bool {
	if (a.Pending == nil) != (b.Pending == nil) {
		return false
	}
	if a.Pending != nil && *a.Pending != *b.Pending {
		return false
	}
	return a.CurrentPosition == b.CurrentPosition &&
		a.PreviousPosition == b.PreviousPosition &&
		a.TargetPosition == b.TargetPosition &&
		a.BatteryLevel == b.BatteryLevel &&
		a.Observed == b.Observed
}
