// Package homekit publishes every registered blind as a HomeKit window
// covering with a battery service behind one bridge accessory.
package homekit

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"blinds_bridge/internal/dispatcher"
	"blinds_bridge/internal/estimator"
	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/models"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/service"
	"golang.org/x/sync/errgroup"
)

// HAP enum values.
const (
	positionDecreasing = 0
	positionIncreasing = 1
	positionStopped    = 2

	batteryNormal = 0
	batteryLow    = 1

	bridgeID = 1
)

var errNotRunning = errors.New("homekit bridge not running")

// Control is the write boundary a controller reaches through TargetPosition.
type Control interface {
	SetTargetPosition(ctx context.Context, deviceID string, value int) error
}

// Snapshots is the read side mirrored into characteristics.
type Snapshots interface {
	ListSnapshots(ctx context.Context) ([]models.DeviceSnapshot, error)
	Subscribe() (<-chan models.DeviceSnapshot, func())
}

// Device is the static metadata of one blind.
type Device struct {
	ID           string
	Name         string
	SerialNumber string
}

type Config struct {
	Name         string
	Pin          string
	StoragePath  string
	Addr         string
	Manufacturer string
	Model        string
	Firmware     string
	Devices      []Device
}

// blind is the accessory tree of one device.
type blind struct {
	id      string
	acc     *accessory.WindowCovering
	battery *service.BatteryService
}

func (b *blind) apply(s models.DeviceSnapshot) {
	wc := b.acc.WindowCovering
	wc.CurrentPosition.SetValue(s.CurrentPosition)
	wc.TargetPosition.SetValue(s.TargetPosition)
	wc.PositionState.SetValue(positionState(s.CurrentPosition, s.TargetPosition))

	b.battery.BatteryLevel.SetValue(s.BatteryLevel)
	if s.LowBattery() {
		b.battery.StatusLowBattery.SetValue(batteryLow)
	} else {
		b.battery.StatusLowBattery.SetValue(batteryNormal)
	}
}

func positionState(current, target int) int {
	switch estimator.DirectionOf(current, target) {
	case estimator.Increasing:
		return positionIncreasing
	case estimator.Decreasing:
		return positionDecreasing
	default:
		return positionStopped
	}
}

// Bridge owns the HAP accessories and keeps them in sync with the store.
type Bridge struct {
	cfg     Config
	states  Snapshots
	control Control
	log     *logger.Logger

	root   *accessory.Bridge
	blinds map[string]*blind
	order  []*blind

	mu  sync.RWMutex
	ctx context.Context
}

// New builds the accessory tree. It does not touch the network.
func New(cfg Config, states Snapshots, control Control, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	b := &Bridge{
		cfg:     cfg,
		states:  states,
		control: control,
		log:     log.Named("homekit"),
		blinds:  make(map[string]*blind, len(cfg.Devices)),
	}

	b.root = accessory.NewBridge(accessory.Info{
		Name:         cfg.Name,
		SerialNumber: "blinds-bridge",
		Manufacturer: cfg.Manufacturer,
		Model:        "blinds-bridge",
		Firmware:     cfg.Firmware,
	})
	b.root.A.Id = bridgeID

	for _, d := range cfg.Devices {
		if _, dup := b.blinds[d.ID]; dup {
			continue
		}
		name := d.Name
		if name == "" {
			name = d.ID
		}
		wc := accessory.NewWindowCovering(accessory.Info{
			Name:         name,
			SerialNumber: d.SerialNumber,
			Manufacturer: cfg.Manufacturer,
			Model:        cfg.Model,
			Firmware:     cfg.Firmware,
		})
		wc.A.Id = accessoryID(d.ID)

		bl := &blind{id: d.ID, acc: wc, battery: service.NewBatteryService()}
		wc.A.AddS(bl.battery.S)

		id := d.ID
		wc.WindowCovering.TargetPosition.OnSetRemoteValue(func(v int) error {
			return b.setTarget(id, v)
		})

		b.blinds[d.ID] = bl
		b.order = append(b.order, bl)
	}
	return b
}

// accessoryID derives a stable HAP id from the device id so pairings survive
// reordering the device list. 0 and 1 are reserved.
func accessoryID(deviceID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(deviceID))
	id := h.Sum64() >> 1
	if id <= bridgeID {
		id += bridgeID + 1
	}
	return id
}

// setTarget is called from the HAP server goroutine when a controller writes
// TargetPosition. A superseded command is not an error for the controller:
// the newer write owns the outcome.
func (b *Bridge) setTarget(deviceID string, value int) error {
	b.mu.RLock()
	ctx := b.ctx
	b.mu.RUnlock()
	if ctx == nil {
		return errNotRunning
	}

	err := b.control.SetTargetPosition(ctx, deviceID, value)
	if errors.Is(err, dispatcher.ErrSuperseded) {
		return nil
	}
	if err != nil {
		b.log.Infow("homekit_set_target_failed", "device", deviceID, "value", value, "err", err)
	}
	return err
}

// Apply mirrors one snapshot into its accessory; unknown ids are ignored.
func (b *Bridge) Apply(s models.DeviceSnapshot) {
	if bl, ok := b.blinds[s.DeviceID]; ok {
		bl.apply(s)
	}
}

// Accessories returns the bridge followed by every blind, in config order.
func (b *Bridge) Accessories() []*accessory.A {
	out := []*accessory.A{b.root.A}
	for _, bl := range b.order {
		out = append(out, bl.acc.A)
	}
	return out
}

// Sync seeds every accessory from the current snapshots, then mirrors changes
// until ctx is done.
func (b *Bridge) Sync(ctx context.Context) error {
	updates, cancel := b.states.Subscribe()
	defer cancel()

	snaps, err := b.states.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("homekit seed: %w", err)
	}
	for _, s := range snaps {
		b.Apply(s)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			b.Apply(s)
		}
	}
}

// Run serves the HAP bridge and mirrors snapshots until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	accs := b.Accessories()
	server, err := hap.NewServer(hap.NewFsStore(b.cfg.StoragePath), accs[0], accs[1:]...)
	if err != nil {
		return fmt.Errorf("homekit server: %w", err)
	}
	server.Pin = b.cfg.Pin
	server.Addr = b.cfg.Addr

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Sync(gctx) })
	g.Go(func() error {
		b.log.Infow("homekit_started", "name", b.cfg.Name, "accessories", len(accs)-1, "addr", b.cfg.Addr)
		if err := server.ListenAndServe(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("homekit serve: %w", err)
		}
		return nil
	})
	return g.Wait()
}
