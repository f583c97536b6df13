package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
	"github.com/yungbote/fleetmdm-backend/internal/push"
)

type stubDevices struct {
	byID map[uuid.UUID]*types.Device
}

func (s *stubDevices) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Device, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, mdmerrors.ErrNotFound
	}
	return d, nil
}

type countingTransport struct {
	mu     sync.Mutex
	pushed []uuid.UUID
}

func (c *countingTransport) Push(_ context.Context, target push.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushed = append(c.pushed, target.DeviceID)
	return nil
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushed)
}

func TestDrainPushDeliversMemoryQueue(t *testing.T) {
	log := logger.Nop()
	queue := push.NewMemoryQueue(16)
	devices := &stubDevices{byID: map[uuid.UUID]*types.Device{}}
	transport := &countingTransport{}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id := uuid.New()
		devices.byID[id] = &types.Device{ID: id, PushToken: "token", PushMagic: "magic"}
		if err := queue.Enqueue(ctx, push.Job{DeviceID: id, EnqueuedAt: time.Now()}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	cfg := push.DispatcherConfig{Workers: 2, MaxAttempts: 1}
	a := &App{
		Log:     log,
		Clients: Clients{PushQueue: queue},
		Services: Services{
			Dispatcher: push.NewDispatcher(log, queue, devices, transport, cfg),
		},
	}
	if err := a.DrainPush(ctx, 5*time.Second); err != nil {
		t.Fatalf("DrainPush: %v", err)
	}
	if n, _ := queue.Len(ctx); n != 0 {
		t.Fatalf("queue not drained: %d left", n)
	}

	// Close waits for the dispatcher; the last dequeued job may still be delivering.
	deadline := time.Now().Add(2 * time.Second)
	for transport.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	a.Close()
	if got := transport.count(); got != 3 {
		t.Fatalf("pushes: want=3 got=%d", got)
	}
}

func TestDrainPushRequiresDispatcher(t *testing.T) {
	a := &App{Log: logger.Nop(), Clients: Clients{PushQueue: push.NewMemoryQueue(1)}}
	if err := a.DrainPush(context.Background(), time.Second); err == nil {
		t.Fatalf("expected error without a dispatcher")
	}
}
