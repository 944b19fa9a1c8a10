// Package simulator is an in-process stand-in for the blind gateway. It
// speaks the same auth and observe protocol and moves its blinds with a
// simple motor model, which makes it usable for local runs and end-to-end tests.
package simulator

import (
	"context"
	"math"
	"sync"
	"time"

	"blinds_bridge/internal/gateway"
	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/models"
)

// ----------- Motor model -----------
const (
	RampPercentPerSec   = 10.0 // travel speed of every blind
	BatteryDrainPerSec  = 0.05 // battery % consumed while the motor runs
	DefaultTickInterval = 200 * time.Millisecond
)

// Device is the initial state of one simulated device, in native coordinates
// (0 = open, 100 = closed). Remote devices report a battery but no position.
type Device struct {
	ID       string
	Position int
	Battery  int
	Remote   bool
}

type motor struct {
	id       string
	remote   bool
	position float64
	target   float64
	battery  float64
	reject   string

	// last values pushed to observers
	sentPosition int
	sentBattery  int
}

func (m *motor) state() gateway.DeviceState {
	st := gateway.DeviceState{ID: m.id, Battery: models.IntPtr(m.sentBattery)}
	if !m.remote {
		st.Position = models.IntPtr(m.sentPosition)
	}
	return st
}

// Simulator holds the simulated devices and the identities it has issued.
type Simulator struct {
	securityCode string
	log          *logger.Logger

	mu         sync.Mutex
	motors     map[string]*motor
	order      []string
	identities map[string]string
	clients    map[*client]struct{}
	lastTick   time.Time
}

// New creates a simulator accepting securityCode.
func New(securityCode string, devices []Device, log *logger.Logger) *Simulator {
	if log == nil {
		log = logger.Nop()
	}
	s := &Simulator{
		securityCode: securityCode,
		log:          log,
		motors:       make(map[string]*motor, len(devices)),
		identities:   make(map[string]string),
		clients:      make(map[*client]struct{}),
	}
	for _, d := range devices {
		m := &motor{
			id:           d.ID,
			remote:       d.Remote,
			position:     float64(d.Position),
			target:       float64(d.Position),
			battery:      float64(d.Battery),
			sentPosition: d.Position,
			sentBattery:  d.Battery,
		}
		s.motors[d.ID] = m
		s.order = append(s.order, d.ID)
	}
	return s
}

// Run advances the motors every tick until ctx is canceled.
func (s *Simulator) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeClients()
			return
		case now := <-t.C:
			s.mu.Lock()
			if s.lastTick.IsZero() {
				s.lastTick = now
				s.mu.Unlock()
				continue
			}
			elapsed := now.Sub(s.lastTick).Seconds()
			s.lastTick = now
			changed := s.advance(elapsed)
			s.mu.Unlock()

			for _, st := range changed {
				s.broadcast(gateway.Frame{Type: gateway.FrameDeviceUpdated, Device: &st})
			}
		}
	}
}

// advance moves every motor toward its target and returns the devices whose
// reported values changed. Callers hold s.mu.
func (s *Simulator) advance(elapsed float64) []gateway.DeviceState {
	var changed []gateway.DeviceState
	for _, id := range s.order {
		m := s.motors[id]
		if m.remote {
			continue
		}
		if s.driveMotor(m, elapsed) {
			changed = append(changed, m.state())
		}
	}
	return changed
}

// driveMotor ramps one blind toward its target. Returns true if a rounded
// value that observers see has changed.
func (s *Simulator) driveMotor(m *motor, elapsed float64) bool {
	if m.position == m.target {
		return false
	}
	step := RampPercentPerSec * elapsed
	if m.position < m.target {
		m.position = math.Min(m.position+step, m.target)
	} else {
		m.position = math.Max(m.position-step, m.target)
	}
	m.battery = math.Max(m.battery-BatteryDrainPerSec*elapsed, 0)

	pos := int(math.Round(m.position))
	bat := int(math.Ceil(m.battery))
	if pos == m.sentPosition && bat == m.sentBattery {
		return false
	}
	m.sentPosition, m.sentBattery = pos, bat
	return true
}

// command sets a new motor target. It returns a non-empty reason when the
// gateway would refuse the request.
func (s *Simulator) command(deviceID string, position int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.motors[deviceID]
	switch {
	case !ok:
		return "unknown device"
	case m.remote:
		return "device has no motor"
	case m.reject != "":
		return m.reject
	case position < models.MinPercent || position > models.MaxPercent:
		return "position out of range"
	}
	m.target = float64(position)
	return ""
}

// Reject makes every following command for deviceID fail with reason.
// An empty reason accepts commands again.
func (s *Simulator) Reject(deviceID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.motors[deviceID]; ok {
		m.reject = reason
	}
}

// Set jumps a device to the given native position and battery and pushes the
// new state to every observer.
func (s *Simulator) Set(deviceID string, position, battery int) {
	s.mu.Lock()
	m, ok := s.motors[deviceID]
	if !ok {
		s.mu.Unlock()
		return
	}
	m.position, m.target, m.battery = float64(position), float64(position), float64(battery)
	m.sentPosition, m.sentBattery = position, battery
	st := m.state()
	s.mu.Unlock()

	s.broadcast(gateway.Frame{Type: gateway.FrameDeviceUpdated, Device: &st})
}

// Target returns the native target of deviceID.
func (s *Simulator) Target(deviceID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.motors[deviceID]
	if !ok {
		return 0, false
	}
	return int(math.Round(m.target)), true
}

func (s *Simulator) snapshot() []gateway.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.DeviceState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.motors[id].state())
	}
	return out
}
