package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blinds_bridge/internal/estimator"
	"blinds_bridge/internal/gateway"
	"blinds_bridge/internal/metrics"
	"blinds_bridge/internal/models"
	"blinds_bridge/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCommander struct {
	mock.Mock
}

func (m *mockCommander) Command(ctx context.Context, deviceID string, nativePosition int) error {
	args := m.Called(ctx, deviceID, nativePosition)
	return args.Error(0)
}

func seededStore(t *testing.T, position int) *store.Store {
	t.Helper()
	st := store.New([]store.Device{{ID: "blind-1"}})
	_, err := st.Reconcile(models.DeviceUpdate{DeviceID: "blind-1", PositionPercent: models.IntPtr(position)}, estimator.Estimate)
	require.NoError(t, err)
	return st
}

func TestDispatch_InvertsAndConfirms(t *testing.T) {
	st := seededStore(t, 50)
	gw := &mockCommander{}
	gw.On("Command", mock.Anything, "blind-1", 70).Return(nil).Once()
	m := metrics.New(prometheus.NewRegistry())

	d := New(gw, st, time.Second, nil, m)
	require.NoError(t, d.Dispatch(context.Background(), "blind-1", 30))

	gw.AssertExpectations(t)
	snap, _ := st.Get("blind-1")
	assert.Equal(t, 30, snap.TargetPosition)
	assert.Equal(t, 30, snap.CurrentPosition)
	assert.Nil(t, snap.Pending)
	assert.False(t, d.InFlight("blind-1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("blind-1", metrics.OutcomeConfirmed)))
}

func TestDispatch_GatewayRejectedRollsBack(t *testing.T) {
	st := seededStore(t, 50)
	rejected := &gateway.CommandError{Kind: gateway.GatewayRejected, DeviceID: "blind-1", Err: errors.New("jammed")}
	gw := &mockCommander{}
	gw.On("Command", mock.Anything, "blind-1", 80).Return(rejected).Once()

	d := New(gw, st, time.Second, nil, nil)
	err := d.Dispatch(context.Background(), "blind-1", 20)

	require.Error(t, err)
	assert.True(t, gateway.IsCommandKind(err, gateway.GatewayRejected))

	snap, _ := st.Get("blind-1")
	assert.Equal(t, 50, snap.TargetPosition, "read boundary must see the pre-command target")
	assert.Equal(t, 50, snap.CurrentPosition)
	assert.Nil(t, snap.Pending)
}

func TestDispatch_ValidatesBeforeSending(t *testing.T) {
	st := seededStore(t, 50)
	gw := &mockCommander{}
	d := New(gw, st, time.Second, nil, nil)

	err := d.Dispatch(context.Background(), "blind-1", 101)
	assert.ErrorIs(t, err, models.ErrOutOfRange)
	gw.AssertNotCalled(t, "Command", mock.Anything, mock.Anything, mock.Anything)

	err = d.Dispatch(context.Background(), "ghost", 10)
	assert.ErrorIs(t, err, models.ErrDeviceNotFound)
}

func TestDispatch_TimeoutReverts(t *testing.T) {
	st := seededStore(t, 40)
	gw := &mockCommander{}
	gw.On("Command", mock.Anything, "blind-1", 0).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(&gateway.CommandError{Kind: gateway.CommandTimeout, DeviceID: "blind-1"}).Once()

	d := New(gw, st, 20*time.Millisecond, nil, nil)
	err := d.Dispatch(context.Background(), "blind-1", 100)
	assert.True(t, gateway.IsCommandKind(err, gateway.CommandTimeout))

	snap, _ := st.Get("blind-1")
	assert.Equal(t, 40, snap.TargetPosition)
}

func TestDispatch_NewerCommandSupersedes(t *testing.T) {
	st := seededStore(t, 50)
	started := make(chan struct{})
	gw := &mockCommander{}
	gw.On("Command", mock.Anything, "blind-1", 90).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.Canceled).Once()
	gw.On("Command", mock.Anything, "blind-1", 40).Return(nil).Once()

	m := metrics.New(prometheus.NewRegistry())
	d := New(gw, st, 5*time.Second, nil, m)

	firstErr := make(chan error, 1)
	go func() { firstErr <- d.Dispatch(context.Background(), "blind-1", 10) }()
	<-started
	require.True(t, d.InFlight("blind-1"))

	require.NoError(t, d.Dispatch(context.Background(), "blind-1", 60))

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatalf("superseded command did not return")
	}

	gw.AssertExpectations(t)
	snap, _ := st.Get("blind-1")
	assert.Equal(t, 60, snap.TargetPosition)
	assert.Equal(t, 60, snap.CurrentPosition)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("blind-1", metrics.OutcomeSuperseded)))
}

func TestDispatch_SupersededFailureKeepsKnownGood(t *testing.T) {
	st := seededStore(t, 50)
	started := make(chan struct{})
	gw := &mockCommander{}
	gw.On("Command", mock.Anything, "blind-1", 90).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.Canceled).Once()
	gw.On("Command", mock.Anything, "blind-1", 40).
		Return(&gateway.CommandError{Kind: gateway.GatewayRejected, DeviceID: "blind-1"}).Once()

	d := New(gw, st, 5*time.Second, nil, nil)
	firstErr := make(chan error, 1)
	go func() { firstErr <- d.Dispatch(context.Background(), "blind-1", 10) }()
	<-started

	err := d.Dispatch(context.Background(), "blind-1", 60)
	assert.True(t, gateway.IsCommandKind(err, gateway.GatewayRejected))
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)

	snap, _ := st.Get("blind-1")
	assert.Equal(t, 50, snap.TargetPosition, "revert lands on the value before either command")
}

// parkingState holds the first BeginCommand caller until released.
type parkingState struct {
	*store.Store
	once    sync.Once
	parked  chan struct{}
	release chan struct{}
}

func (p *parkingState) BeginCommand(id string, target int) (uint64, error) {
	token, err := p.Store.BeginCommand(id, target)
	p.once.Do(func() {
		close(p.parked)
		<-p.release
	})
	return token, err
}

func TestDispatch_ConcurrentBeginLeavesNothingPending(t *testing.T) {
	st := seededStore(t, 50)
	state := &parkingState{Store: st, parked: make(chan struct{}), release: make(chan struct{})}
	gw := &mockCommander{}
	gw.On("Command", mock.Anything, "blind-1", 90).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.Canceled).Maybe()
	gw.On("Command", mock.Anything, "blind-1", 20).Return(nil).Once()

	d := New(gw, state, 5*time.Second, nil, nil)

	firstErr := make(chan error, 1)
	go func() { firstErr <- d.Dispatch(context.Background(), "blind-1", 10) }()
	<-state.parked

	secondErr := make(chan error, 1)
	go func() { secondErr <- d.Dispatch(context.Background(), "blind-1", 80) }()
	time.Sleep(20 * time.Millisecond)
	close(state.release)

	var errs []error
	for _, ch := range []chan error{firstErr, secondErr} {
		select {
		case err := <-ch:
			errs = append(errs, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("dispatch did not return")
		}
	}
	assert.ErrorIs(t, errs[0], ErrSuperseded)
	assert.NoError(t, errs[1])

	snap, _ := st.Get("blind-1")
	assert.Nil(t, snap.Pending, "a command was left pending")
	assert.Equal(t, 80, snap.TargetPosition)
	assert.Equal(t, 80, snap.CurrentPosition)
	assert.False(t, d.InFlight("blind-1"))
	gw.AssertExpectations(t)
}
