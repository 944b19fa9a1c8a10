// Package bridge owns the gateway session and the per-device state, and keeps
// the two in sync.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blinds_bridge/internal/dispatcher"
	"blinds_bridge/internal/estimator"
	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/metrics"
	"blinds_bridge/internal/models"
	"blinds_bridge/internal/store"

	"golang.org/x/sync/errgroup"
)

const (
	workerBuffer   = 64
	eventTimeout   = 2 * time.Second
	defaultBackoff = time.Minute
)

// Session is the gateway connection the bridge drives.
type Session interface {
	Connect(ctx context.Context) error
	Updates() <-chan models.DeviceUpdate
	Disconnected() <-chan struct{}
	Close() error
}

// EventRecorder appends operational events.
type EventRecorder interface {
	Append(ctx context.Context, e models.BridgeEvent) error
}

// Config tunes timing. Zero values fall back to defaults.
type Config struct {
	StopDebounce   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Scheduler replaces time.AfterFunc for stop detection.
	Scheduler estimator.Scheduler
}

// Bridge is the explicit owner of one gateway session and the snapshots of
// every registered device.
type Bridge struct {
	session    Session
	store      *store.Store
	dispatcher *dispatcher.Dispatcher
	stops      *estimator.StopTimer
	events     EventRecorder
	log        *logger.Logger
	metrics    *metrics.Metrics
	cfg        Config

	mu       sync.Mutex
	workers  map[string]chan models.DeviceUpdate
	wg       sync.WaitGroup
	connects int
}

// New wires a bridge. events and m may be nil.
func New(session Session, st *store.Store, d *dispatcher.Dispatcher, events EventRecorder, cfg Config, log *logger.Logger, m *metrics.Metrics) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultBackoff
	}
	return &Bridge{
		session:    session,
		store:      st,
		dispatcher: d,
		stops:      estimator.NewStopTimer(cfg.StopDebounce, cfg.Scheduler),
		events:     events,
		log:        log,
		metrics:    m,
		cfg:        cfg,
		workers:    make(map[string]chan models.DeviceUpdate),
	}
}

// Store exposes the snapshot table for readers.
func (b *Bridge) Store() *store.Store { return b.store }

// Dispatcher exposes the command path for writers.
func (b *Bridge) Dispatcher() *dispatcher.Dispatcher { return b.dispatcher }

// Run keeps the session connected and applies device updates until ctx is
// canceled. Updates for one device are applied in arrival order; different
// devices are processed concurrently.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.supervise(gctx) })
	g.Go(func() error { return b.consume(gctx) })

	err := g.Wait()
	b.stops.StopAll()
	if cerr := b.session.Close(); cerr != nil {
		b.log.Warnw("gateway_close_failed", "err", cerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Bridge) consume(ctx context.Context) error {
	defer b.stopWorkers()
	updates := b.session.Updates()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			b.route(ctx, u)
		}
	}
}

// route hands u to the worker owning its device, starting one if needed.
func (b *Bridge) route(ctx context.Context, u models.DeviceUpdate) {
	if !b.store.Has(u.DeviceID) {
		b.log.Debugw("device_update_ignored", "device", u.DeviceID)
		return
	}

	b.mu.Lock()
	ch, ok := b.workers[u.DeviceID]
	if !ok {
		ch = make(chan models.DeviceUpdate, workerBuffer)
		b.workers[u.DeviceID] = ch
		b.wg.Add(1)
		go b.worker(ch)
	}
	b.mu.Unlock()

	select {
	case ch <- u:
	case <-ctx.Done():
	}
}

func (b *Bridge) worker(ch <-chan models.DeviceUpdate) {
	defer b.wg.Done()
	for u := range ch {
		b.Apply(u)
	}
}

func (b *Bridge) stopWorkers() {
	b.mu.Lock()
	for id, ch := range b.workers {
		close(ch)
		delete(b.workers, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// Apply runs one reconciliation cycle for u and re-arms stop detection when
// a position was reported.
func (b *Bridge) Apply(u models.DeviceUpdate) {
	snap, err := b.store.Reconcile(u, estimator.Estimate)
	if err != nil {
		b.log.Warnw("device_update_rejected", "device", u.DeviceID, "err", err)
		return
	}
	if b.metrics != nil {
		b.metrics.Updates.WithLabelValues(u.DeviceID).Inc()
		b.metrics.Position.WithLabelValues(u.DeviceID).Set(float64(snap.CurrentPosition))
		b.metrics.Battery.WithLabelValues(u.DeviceID).Set(float64(snap.BatteryLevel))
	}
	b.log.Debugw("device_updated",
		"device", u.DeviceID,
		"current", snap.CurrentPosition,
		"target", snap.TargetPosition,
		"battery", snap.BatteryLevel,
	)

	if !u.HasPosition() {
		return
	}
	id, armed := u.DeviceID, snap.CurrentPosition
	b.stops.Arm(id, func() { b.onStopped(id, armed) })
}

func (b *Bridge) onStopped(id string, position int) {
	changed, err := b.store.CollapseTarget(id, position)
	if err != nil {
		b.log.Warnw("stop_collapse_failed", "device", id, "err", err)
		return
	}
	if !changed {
		return
	}
	if b.metrics != nil {
		b.metrics.StopsDetected.WithLabelValues(id).Inc()
	}
	b.log.Infow("device_stopped", "device", id, "position", position)
	b.record(models.EventStopped, id, fmt.Sprintf("Stopped at %d%%", position), map[string]any{"position": position})
}

// supervise connects with exponential backoff and reconnects whenever the
// observe channel drops.
func (b *Bridge) supervise(ctx context.Context) error {
	for {
		if err := b.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-b.session.Disconnected():
			if b.metrics != nil {
				b.metrics.GatewayConnected.Set(0)
			}
			b.log.Warnw("gateway_connection_lost")
			b.record(models.EventDisconnect, "", "Gateway connection lost", nil)
		}
	}
}
