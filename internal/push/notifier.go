package push

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// Notifier hands wake-ups to the queue and returns without waiting on the transport.
type Notifier struct {
	log   *logger.Logger
	queue Queue
}

func NewNotifier(log *logger.Logger, queue Queue) *Notifier {
	return &Notifier{
		log:   log.With("service", "PushNotifier"),
		queue: queue,
	}
}

func (n *Notifier) Notify(ctx context.Context, deviceID uuid.UUID) error {
	job := Job{DeviceID: deviceID, EnqueuedAt: time.Now().UTC()}
	if err := n.queue.Enqueue(ctx, job); err != nil {
		return &TransportError{DeviceID: deviceID, Err: err}
	}
	n.log.Debug("Push queued", "device_id", deviceID)
	return nil
}
