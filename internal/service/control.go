package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blinds_bridge/internal/dispatcher"
	"blinds_bridge/internal/models"
	"blinds_bridge/internal/repository"

	"github.com/google/uuid"
)

// Dispatcher forwards a target position to the gateway.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID string, position int) error
}

type ControlService struct {
	states    StateReader
	commands  Dispatcher
	eventRepo repository.EventRepo
}

func NewControlService(states StateReader, commands Dispatcher, eventRepo repository.EventRepo) *ControlService {
	return &ControlService{states: states, commands: commands, eventRepo: eventRepo}
}

// SetTargetPosition validates value, then hands it to the dispatcher. The
// outcome is written to the event log; a superseded command is not an error
// worth logging since a newer request for the same blind owns the outcome.
func (s *ControlService) SetTargetPosition(ctx context.Context, deviceID string, value int) error {
	if err := models.ValidatePercent("target_position", value); err != nil {
		return err
	}
	before, err := s.states.Get(deviceID)
	if err != nil {
		return err
	}

	err = s.commands.Dispatch(ctx, deviceID, value)
	switch {
	case errors.Is(err, dispatcher.ErrSuperseded):
		return err
	case err != nil:
		s.appendEvent(ctx, models.BridgeEvent{
			Type:        models.EventCommandFailed,
			DeviceID:    deviceID,
			Description: fmt.Sprintf("Target %d%% failed: %v", value, err),
			Metadata:    map[string]any{"requested": value, "from": before.TargetPosition},
		})
		return err
	}

	s.appendEvent(ctx, models.BridgeEvent{
		Type:        models.EventCommand,
		DeviceID:    deviceID,
		Description: fmt.Sprintf("Target set to %d%%", value),
		Metadata:    map[string]any{"requested": value, "from": before.TargetPosition},
	})
	return nil
}

// appendEvent is best effort: the command already reached the gateway, so a
// log write failure must not turn it into an error.
func (s *ControlService) appendEvent(ctx context.Context, ev models.BridgeEvent) {
	if s.eventRepo == nil {
		return
	}
	ev.EventID = uuid.NewString()
	ev.OccurredAt = time.Now().UTC()
	_ = s.eventRepo.Append(context.WithoutCancel(ctx), ev)
}
