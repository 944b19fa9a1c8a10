// Package dispatcher serializes outbound position commands per device.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"blinds_bridge/internal/gateway"
	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/metrics"
	"blinds_bridge/internal/models"
	"blinds_bridge/internal/store"
)

// ErrSuperseded is returned to the caller of a command that was replaced by
// a newer command for the same device before it completed.
var ErrSuperseded = errors.New("command superseded by a newer one")

// DefaultCommandTimeout bounds how long a command may wait for its ack.
const DefaultCommandTimeout = 5 * time.Second

// Commander sends a native-coordinate position to the gateway.
type Commander interface {
	Command(ctx context.Context, deviceID string, nativePosition int) error
}

// CommandState is the two-phase pending/confirmed/reverted state of a device.
type CommandState interface {
	BeginCommand(id string, target int) (uint64, error)
	ConfirmCommand(id string, token uint64) error
	RevertCommand(id string, token uint64) error
}

type flight struct {
	cancel     context.CancelFunc
	superseded bool
}

// Dispatcher keeps at most one command in flight per device. A newer command
// cancels the older one; only the latest requested position matters.
type Dispatcher struct {
	gw      Commander
	state   CommandState
	timeout time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]*flight
}

// New builds a dispatcher. m may be nil.
func New(gw Commander, state CommandState, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		gw:       gw,
		state:    state,
		timeout:  timeout,
		log:      log,
		metrics:  m,
		inflight: make(map[string]*flight),
	}
}

// Dispatch sends position (accessory coordinates) to deviceID. The target is
// shown immediately; on acknowledgement current and target both move to
// position, on failure the target goes back to its last known-good value.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, position int) error {
	if err := models.ValidatePercent("target_position", position); err != nil {
		return err
	}

	// The newest token must own the flight: begin and register together.
	d.mu.Lock()
	token, err := d.state.BeginCommand(deviceID, position)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	f := &flight{cancel: cancel}
	if prev, ok := d.inflight[deviceID]; ok {
		prev.superseded = true
		prev.cancel()
	}
	d.inflight[deviceID] = f
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.inflight[deviceID] == f {
			delete(d.inflight, deviceID)
		}
		d.mu.Unlock()
		cancel()
	}()

	err = d.gw.Command(cctx, deviceID, gateway.Invert(position))

	d.mu.Lock()
	superseded := f.superseded
	d.mu.Unlock()
	if superseded {
		return d.superseded(deviceID, position)
	}

	if err != nil {
		if rErr := d.state.RevertCommand(deviceID, token); errors.Is(rErr, store.ErrStaleCommand) {
			return d.superseded(deviceID, position)
		} else if rErr != nil {
			d.log.Warnw("command_revert_failed", "device", deviceID, "err", rErr)
		}
		d.log.Warnw("command_failed", "device", deviceID, "position", position, "err", err)
		d.count(deviceID, metrics.OutcomeReverted)
		return err
	}

	if cErr := d.state.ConfirmCommand(deviceID, token); errors.Is(cErr, store.ErrStaleCommand) {
		return d.superseded(deviceID, position)
	} else if cErr != nil {
		d.log.Warnw("command_confirm_failed", "device", deviceID, "err", cErr)
	}
	d.log.Infow("command_confirmed", "device", deviceID, "position", position)
	d.count(deviceID, metrics.OutcomeConfirmed)
	return nil
}

// InFlight reports whether a command for deviceID is awaiting its ack.
func (d *Dispatcher) InFlight(deviceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[deviceID]
	return ok
}

func (d *Dispatcher) superseded(deviceID string, position int) error {
	d.log.Debugw("command_superseded", "device", deviceID, "position", position)
	d.count(deviceID, metrics.OutcomeSuperseded)
	return ErrSuperseded
}

func (d *Dispatcher) count(deviceID, outcome string) {
	if d.metrics != nil {
		d.metrics.Commands.WithLabelValues(deviceID, outcome).Inc()
	}
}
