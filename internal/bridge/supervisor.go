package bridge

import (
	"context"
	"time"

	"blinds_bridge/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

func (b *Bridge) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if b.cfg.InitialBackoff > 0 {
		eb.InitialInterval = b.cfg.InitialBackoff
	}
	eb.MaxInterval = b.cfg.MaxBackoff
	return eb
}

// connect retries Session.Connect until it succeeds or ctx ends.
func (b *Bridge) connect(ctx context.Context) error {
	op := func() (struct{}, error) {
		return struct{}{}, b.session.Connect(ctx)
	}
	notify := func(err error, next time.Duration) {
		b.log.Warnw("gateway_connect_retry", "err", err, "next_in", next)
	}
	if _, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	); err != nil {
		return err
	}

	b.mu.Lock()
	b.connects++
	reconnect := b.connects > 1
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.GatewayConnected.Set(1)
		if reconnect {
			b.metrics.Reconnects.Inc()
		}
	}
	b.record(models.EventConnect, "", "Gateway connected", map[string]any{"reconnect": reconnect})
	return nil
}

// record appends an event; failures are logged and otherwise ignored.
func (b *Bridge) record(typ, deviceID, description string, meta map[string]any) {
	if b.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	ev := models.BridgeEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		DeviceID:    deviceID,
		Description: description,
	}
	if meta != nil {
		ev.Metadata = meta
	}
	if err := b.events.Append(ctx, ev); err != nil {
		b.log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}
