package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"blinds_bridge/internal/dispatcher"
	"blinds_bridge/internal/estimator"
	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/models"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	stateSuffix = "/state"
	setSuffix   = "/set"
)

// Control is the write boundary set messages are routed through.
type Control interface {
	SetTargetPosition(ctx context.Context, deviceID string, value int) error
}

// Snapshots is the read side published to the broker.
type Snapshots interface {
	ListSnapshots(ctx context.Context) ([]models.DeviceSnapshot, error)
	Subscribe() (<-chan models.DeviceSnapshot, func())
}

// StateMessage is the retained payload of <prefix>/<device>/state.
type StateMessage struct {
	DeviceID        string    `json:"device_id"`
	Name            string    `json:"name"`
	CurrentPosition int       `json:"current_position"`
	TargetPosition  int       `json:"target_position"`
	PositionState   string    `json:"position_state"`
	BatteryLevel    int       `json:"battery_level"`
	LowBattery      bool      `json:"low_battery"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SetMessage is the payload accepted on <prefix>/<device>/set.
type SetMessage struct {
	TargetPosition *int `json:"target_position"`
}

func newStateMessage(s models.DeviceSnapshot) StateMessage {
	return StateMessage{
		DeviceID:        s.DeviceID,
		Name:            s.Name,
		CurrentPosition: s.CurrentPosition,
		TargetPosition:  s.TargetPosition,
		PositionState:   estimator.DirectionOf(s.CurrentPosition, s.TargetPosition).String(),
		BatteryLevel:    s.BatteryLevel,
		LowBattery:      s.LowBattery(),
		UpdatedAt:       s.UpdatedAt,
	}
}

// Mirror publishes snapshots and forwards set requests for the registered devices.
type Mirror struct {
	cli     ClientAPI
	prefix  string
	ids     []string
	states  Snapshots
	control Control
	log     *logger.Logger

	wg  sync.WaitGroup
	mu  sync.RWMutex
	ctx context.Context
}

func NewMirror(cli ClientAPI, prefix string, ids []string, states Snapshots, control Control, log *logger.Logger) *Mirror {
	if log == nil {
		log = logger.Nop()
	}
	return &Mirror{
		cli:     cli,
		prefix:  strings.TrimSuffix(prefix, "/"),
		ids:     ids,
		states:  states,
		control: control,
		log:     log.Named("mqtt"),
	}
}

func (m *Mirror) stateTopic(id string) string { return m.prefix + "/" + id + stateSuffix }
func (m *Mirror) setTopic(id string) string   { return m.prefix + "/" + id + setSuffix }

// deviceFromSetTopic extracts the device id from <prefix>/<id>/set.
func (m *Mirror) deviceFromSetTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, m.prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, setSuffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Run subscribes to every set topic, publishes the current snapshots, then
// publishes each change until ctx is done. In-flight set requests are waited for.
func (m *Mirror) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.ctx = nil
		m.mu.Unlock()
		m.wg.Wait()
	}()

	updates, cancel := m.states.Subscribe()
	defer cancel()

	for _, id := range m.ids {
		if err := m.cli.Subscribe(m.setTopic(id), m.onSet); err != nil {
			return fmt.Errorf("subscribe %s: %w", m.setTopic(id), err)
		}
	}
	defer func() {
		for _, id := range m.ids {
			if err := m.cli.Unsubscribe(m.setTopic(id)); err != nil {
				m.log.Infow("mqtt_unsubscribe_failed", "device", id, "err", err)
			}
		}
	}()

	snaps, err := m.states.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("mqtt seed: %w", err)
	}
	for _, s := range snaps {
		m.publish(s)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			m.publish(s)
		}
	}
}

// publish failures are logged; the next change republishes the full state.
func (m *Mirror) publish(s models.DeviceSnapshot) {
	payload, err := json.Marshal(newStateMessage(s))
	if err != nil {
		m.log.Errorw("mqtt_encode_failed", "device", s.DeviceID, "err", err)
		return
	}
	if err := m.cli.PublishWith(m.stateTopic(s.DeviceID), payload, true); err != nil {
		m.log.Errorw("mqtt_publish_failed", "device", s.DeviceID, "err", err)
	}
}

func (m *Mirror) onSet(_ paho.Client, msg Message) {
	m.handleSet(msg.Topic(), msg.Payload())
}

// handleSet validates a set payload and dispatches it on its own goroutine so
// the paho router is never blocked by a command round trip.
func (m *Mirror) handleSet(topic string, payload []byte) {
	id, ok := m.deviceFromSetTopic(topic)
	if !ok {
		m.log.Infow("mqtt_set_bad_topic", "topic", topic)
		return
	}
	var req SetMessage
	if err := json.Unmarshal(payload, &req); err != nil || req.TargetPosition == nil {
		m.log.Infow("mqtt_set_bad_payload", "device", id, "payload", string(payload), "err", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx := m.ctx
	if ctx == nil {
		return
	}

	value := *req.TargetPosition
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.control.SetTargetPosition(ctx, id, value)
		switch {
		case err == nil, errors.Is(err, dispatcher.ErrSuperseded):
		case errors.Is(err, context.Canceled):
		default:
			m.log.Infow("mqtt_set_failed", "device", id, "value", value, "err", err)
		}
	}()
}
