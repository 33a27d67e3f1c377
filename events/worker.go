package events

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/relabs-tech/fwevents/core/logger"
)

// taskQueueFirmwareEvents is the queue for asynchronous persistence of
// accepted firmware event reports.
const taskQueueFirmwareEvents = "firmware_events"

// TaskMessage is the payload of a task on the firmware events queue.
type TaskMessage struct {
	DeviceID  uuid.UUID `json:"device_id"`
	Version   string    `json:"version"`
	Timestamp int64     `json:"timestamp"`
}

func (s *Service) registerFirmwareEventWorker() {
	s.HandleTask(taskQueueFirmwareEvents, s.persistFirmwareEvent)
}

// persistFirmwareEvent writes an accepted firmware event report to the
// database. Replays of the same task insert the very same row and therefore
// count as success. A task for a device that has been deleted in the
// meantime can never succeed and goes to the dead letter queue.
func (s *Service) persistFirmwareEvent(ctx context.Context, t Task) error {
	rlog := logger.FromContext(ctx)

	var message TaskMessage
	if err := json.Unmarshal(t.Payload, &message); err != nil {
		return Permanent(fmt.Errorf("undecodable payload: %s", err))
	}

	event, created, err := s.store.InsertFirmwareEvent(ctx, FirmwareEvent{
		DeviceID:  message.DeviceID,
		Version:   message.Version,
		Timestamp: message.Timestamp,
	})
	if err == ErrDeviceNotFound {
		return Permanent(err)
	}
	if err != nil {
		return err
	}
	if !created {
		rlog.Infof("firmware event %s@%d for device %s was recorded before", message.Version, message.Timestamp, message.DeviceID)
		return nil
	}

	if s.publisher != nil {
		err := s.publisher.PublishFirmwareEvent(ctx, event)
		if err != nil {
			// fan-out is best effort, the event itself is safely stored
			rlog.WithError(err).Errorln("Error 4226: cannot publish firmware event")
		}
	}
	return nil
}
