package push

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type fakeDevices struct {
	byID map[uuid.UUID]*types.Device
}

func (f *fakeDevices) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Device, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, mdmerrors.ErrNotFound
	}
	return d, nil
}

type flakyTransport struct {
	mu       sync.Mutex
	failures int
	pushed   []Target
	attempts int
}

func (t *flakyTransport) Push(_ context.Context, target Target) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	if t.failures > 0 {
		t.failures--
		return errors.New("connection reset")
	}
	t.pushed = append(t.pushed, target)
	return nil
}

func (t *flakyTransport) snapshot() (int, []Target) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts, append([]Target{}, t.pushed...)
}

func pushable(id uuid.UUID) *types.Device {
	return &types.Device{ID: id, UDID: "udid", PushToken: "tok", PushMagic: "magic", Topic: "com.example.mdm"}
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	id := uuid.New()
	tr := &flakyTransport{failures: 2}
	d := NewDispatcher(logger.Nop(), NewMemoryQueue(1), &fakeDevices{byID: map[uuid.UUID]*types.Device{id: pushable(id)}}, tr,
		DispatcherConfig{MaxAttempts: 3, RetryBase: time.Millisecond})

	if err := d.Deliver(context.Background(), Job{DeviceID: id}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	attempts, pushed := tr.snapshot()
	if attempts != 3 || len(pushed) != 1 {
		t.Fatalf("expected 3 attempts and 1 push, got %d / %d", attempts, len(pushed))
	}
	if pushed[0].Token != "tok" || pushed[0].PushMagic != "magic" {
		t.Fatalf("unexpected target %+v", pushed[0])
	}
}

func TestDeliverGivesUpWithTransportError(t *testing.T) {
	id := uuid.New()
	tr := &flakyTransport{failures: 10}
	d := NewDispatcher(logger.Nop(), NewMemoryQueue(1), &fakeDevices{byID: map[uuid.UUID]*types.Device{id: pushable(id)}}, tr,
		DispatcherConfig{MaxAttempts: 2, RetryBase: time.Millisecond})

	err := d.Deliver(context.Background(), Job{DeviceID: id})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.DeviceID != id {
		t.Fatalf("expected device %s, got %s", id, te.DeviceID)
	}
	if attempts, _ := tr.snapshot(); attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDeliverSkipsDeviceWithoutPushState(t *testing.T) {
	id := uuid.New()
	tr := &flakyTransport{}
	d := NewDispatcher(logger.Nop(), NewMemoryQueue(1), &fakeDevices{byID: map[uuid.UUID]*types.Device{id: {ID: id}}}, tr, DispatcherConfig{})

	if err := d.Deliver(context.Background(), Job{DeviceID: id}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if attempts, _ := tr.snapshot(); attempts != 0 {
		t.Fatalf("expected no push attempts, got %d", attempts)
	}
}

func TestNotifierQueueFullIsTransportError(t *testing.T) {
	q := NewMemoryQueue(1)
	n := NewNotifier(logger.Nop(), q)
	ctx := context.Background()

	if err := n.Notify(ctx, uuid.New()); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	err := n.Notify(ctx, uuid.New())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError when queue is full, got %v", err)
	}
}

func TestDispatcherRunDrainsQueue(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	devices := &fakeDevices{byID: map[uuid.UUID]*types.Device{}}
	for _, id := range ids {
		devices.byID[id] = pushable(id)
	}
	q := NewMemoryQueue(len(ids))
	n := NewNotifier(logger.Nop(), q)
	tr := &flakyTransport{}
	d := NewDispatcher(logger.Nop(), q, devices, tr, DispatcherConfig{Workers: 2, RetryBase: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for _, id := range ids {
		if err := n.Notify(ctx, id); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	deadline := time.After(5 * time.Second)
	for {
		if _, pushed := tr.snapshot(); len(pushed) == len(ids) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("dispatcher did not drain queue")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestBackoffStaysInJitterWindow(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 4; attempt++ {
		want := base << (attempt - 1)
		for i := 0; i < 50; i++ {
			got := backoff(base, attempt)
			if got < want/2 || got > want+want/2 {
				t.Fatalf("attempt %d: backoff %v outside [%v, %v]", attempt, got, want/2, want+want/2)
			}
		}
	}
}

func TestBackoffCapsLargeAttempts(t *testing.T) {
	base := 500 * time.Millisecond
	for _, attempt := range []int{20, 36, 64, 1000} {
		got := backoff(base, attempt)
		if got < maxBackoff/2 || got > maxBackoff+maxBackoff/2 {
			t.Fatalf("attempt %d: backoff %v outside [%v, %v]", attempt, got, maxBackoff/2, maxBackoff+maxBackoff/2)
		}
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis queue tests")
	}
	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	key := "mdm:push:test:" + uuid.NewString()
	q, err := NewRedisQueue(logger.Nop(), rdb, key)
	if err != nil {
		t.Fatalf("NewRedisQueue: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.Del(context.Background(), key).Err()
		_ = q.Close()
	})

	first, second := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{first, second} {
		if err := q.Enqueue(ctx, Job{DeviceID: id}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	for _, want := range []uuid.UUID{first, second} {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if job.DeviceID != want {
			t.Fatalf("expected FIFO order: want %s, got %s", want, job.DeviceID)
		}
	}
}
