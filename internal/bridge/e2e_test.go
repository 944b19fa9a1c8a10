package bridge_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"blinds_bridge/internal/bridge"
	"blinds_bridge/internal/dispatcher"
	"blinds_bridge/internal/estimator"
	"blinds_bridge/internal/gateway"
	"blinds_bridge/internal/models"
	"blinds_bridge/internal/repository"
	"blinds_bridge/internal/service"
	"blinds_bridge/internal/simulator"
	"blinds_bridge/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCreds struct {
	mu    sync.Mutex
	creds map[string]models.GatewayCredentials
}

func (m *memCreds) Load(_ context.Context, host string) (models.GatewayCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[host], nil
}

func (m *memCreds) Save(_ context.Context, c models.GatewayCredentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.Host] = c
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	events []models.BridgeEvent
}

func (m *memEvents) Append(_ context.Context, e models.BridgeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) List(_ context.Context, _ repository.EventFilter) ([]models.BridgeEvent, error) {
	return nil, nil
}

func (m *memEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// End to end over a real websocket: simulator, session, bridge, dispatcher
// and the write boundary.
func TestBridge_EndToEndAgainstSimulator(t *testing.T) {
	sim := simulator.New("secret", []simulator.Device{{ID: "65537", Position: 70, Battery: 90}}, nil)
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	session := gateway.NewSession(gateway.Config{URL: srv.URL, SecurityCode: "secret", Identity: "bridge"},
		&memCreds{creds: map[string]models.GatewayCredentials{}}, nil)
	states := store.New([]store.Device{{ID: "65537", Name: "Bedroom"}})
	commands := dispatcher.New(session, states, 2*time.Second, nil, nil)
	events := &memEvents{}
	b := bridge.New(session, states, commands, events, bridge.Config{
		StopDebounce:   100 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}, nil, nil)
	control := service.NewControlService(states, commands, events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Native 70 is reported as 30 (0 = closed, 100 = open).
	require.Eventually(t, func() bool {
		s, err := states.Get("65537")
		return err == nil && s.Observed && s.CurrentPosition == 30 && s.BatteryLevel == 90
	}, 2*time.Second, 10*time.Millisecond)

	// 30 -> 70 reaches the gateway as native 30.
	require.NoError(t, control.SetTargetPosition(ctx, "65537", 70))
	native, _ := sim.Target("65537")
	assert.Equal(t, 30, native)
	snap, _ := states.Get("65537")
	assert.Equal(t, 70, snap.TargetPosition)

	// A rejected command rolls the target back.
	sim.Reject("65537", "jammed")
	err := control.SetTargetPosition(ctx, "65537", 20)
	require.Error(t, err)
	assert.True(t, gateway.IsCommandKind(err, gateway.GatewayRejected), "got %v", err)
	snap, _ = states.Get("65537")
	assert.Equal(t, 70, snap.TargetPosition)
	assert.Nil(t, snap.Pending)
	sim.Reject("65537", "")

	// A jump past the target is read as travel to the end stop, then collapses
	// to the resting position once the reports stop.
	sim.Set("65537", 10, 90)
	require.Eventually(t, func() bool {
		s, _ := states.Get("65537")
		return s.CurrentPosition == 90 && s.TargetPosition == 90
	}, 2*time.Second, 10*time.Millisecond)
	s, _ := states.Get("65537")
	assert.Equal(t, estimator.Stopped, estimator.DirectionOf(s.CurrentPosition, s.TargetPosition))

	require.Eventually(t, func() bool {
		types := events.types()
		return contains(types, models.EventConnect) &&
			contains(types, models.EventCommand) &&
			contains(types, models.EventCommandFailed) &&
			contains(types, models.EventStopped)
	}, 2*time.Second, 10*time.Millisecond, "events: %v", events.types())
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
