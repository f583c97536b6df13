package push

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// TransportError is a failed wake-up. It never fails a membership change.
type TransportError struct {
	DeviceID uuid.UUID
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("push to device %s: %v", e.DeviceID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Target is what a transport needs to reach a device.
type Target struct {
	DeviceID  uuid.UUID
	Token     string
	PushMagic string
	Topic     string
}

type Transport interface {
	Push(ctx context.Context, target Target) error
}

type logTransport struct {
	log *logger.Logger
}

// NewLogTransport records pushes instead of sending them. Used until a real APNs
// transport is configured.
func NewLogTransport(log *logger.Logger) Transport {
	return &logTransport{log: log.With("service", "LogPushTransport")}
}

func (t *logTransport) Push(_ context.Context, target Target) error {
	t.log.Info("Push", "device_id", target.DeviceID, "topic", target.Topic, "token", target.Token, "push_magic", target.PushMagic)
	return nil
}
