package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"blinds_bridge/internal/models"
	"blinds_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

// mockAccessory serves snapshots from a map and fans out whatever is sent on feed.
type mockAccessory struct {
	snaps   map[string]models.DeviceSnapshot
	listErr error
	feed    chan models.DeviceSnapshot

	mu          sync.Mutex
	subscribed  int
	unsubscribe int
}

func (m *mockAccessory) GetSnapshot(ctx context.Context, id string) (models.DeviceSnapshot, error) {
	s, ok := m.snaps[id]
	if !ok {
		return models.DeviceSnapshot{}, models.ErrDeviceNotFound
	}
	return s, nil
}
func (m *mockAccessory) ListSnapshots(ctx context.Context) ([]models.DeviceSnapshot, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.DeviceSnapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s)
	}
	return out, nil
}
func (m *mockAccessory) GetCurrentPosition(ctx context.Context, id string) (int, error) {
	s, err := m.GetSnapshot(ctx, id)
	return s.CurrentPosition, err
}
func (m *mockAccessory) GetTargetPosition(ctx context.Context, id string) (int, error) {
	s, err := m.GetSnapshot(ctx, id)
	return s.TargetPosition, err
}
func (m *mockAccessory) GetBatteryLevel(ctx context.Context, id string) (int, error) {
	s, err := m.GetSnapshot(ctx, id)
	return s.BatteryLevel, err
}
func (m *mockAccessory) GetLowBatteryFlag(ctx context.Context, id string) (bool, error) {
	s, err := m.GetSnapshot(ctx, id)
	return s.LowBattery(), err
}
func (m *mockAccessory) Subscribe() (<-chan models.DeviceSnapshot, func()) {
	m.mu.Lock()
	m.subscribed++
	m.mu.Unlock()
	ch := m.feed
	if ch == nil {
		ch = make(chan models.DeviceSnapshot)
	}
	return ch, func() {
		m.mu.Lock()
		m.unsubscribe++
		m.mu.Unlock()
	}
}

type mockControl struct {
	err       error
	calls     int
	lastID    string
	lastValue int
}

func (m *mockControl) SetTargetPosition(ctx context.Context, id string, value int) error {
	m.calls++
	m.lastID = id
	m.lastValue = value
	return m.err
}

type mockEventLog struct {
	resp       []models.BridgeEvent
	err        error
	lastFrom   time.Time
	lastTo     time.Time
	lastType   string
	lastDevice string
	lastLimit  int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.BridgeEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastDevice = f.DeviceID
	m.lastLimit = f.Limit
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
