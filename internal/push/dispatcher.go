package push

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/observability"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type DeviceLookup interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Device, error)
}

type DispatcherConfig struct {
	Workers     int
	MaxAttempts int
	RetryBase   time.Duration
	PushTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = 10 * time.Second
	}
	return c
}

// Dispatcher drains the push queue with a fixed worker pool and calls the transport
// for each device, retrying failed pushes with jittered exponential backoff.
type Dispatcher struct {
	log       *logger.Logger
	queue     Queue
	devices   DeviceLookup
	transport Transport
	cfg       DispatcherConfig
}

func NewDispatcher(log *logger.Logger, queue Queue, devices DeviceLookup, transport Transport, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		log:       log.With("component", "PushDispatcher"),
		queue:     queue,
		devices:   devices,
		transport: transport,
		cfg:       cfg.withDefaults(),
	}
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("Starting push dispatcher", "workers", d.cfg.Workers, "max_attempts", d.cfg.MaxAttempts)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			d.runLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) runLoop(ctx context.Context, workerID int) {
	for {
		job, err := d.queue.Dequeue(ctx)
		if ctx.Err() != nil {
			d.log.Info("Push worker stopped", "worker_id", workerID)
			return
		}
		if errors.Is(err, ErrQueueEmpty) {
			continue
		}
		if err != nil {
			d.log.Warn("Dequeue failed", "worker_id", workerID, "error", err)
			if !sleepCtx(ctx, d.cfg.RetryBase) {
				return
			}
			continue
		}
		if err := d.Deliver(ctx, job); err != nil {
			d.log.Warn("Push gave up", "worker_id", workerID, "device_id", job.DeviceID, "error", err)
		}
	}
}

// Deliver pushes one job, retrying up to MaxAttempts. Devices without push state are
// skipped without error.
func (d *Dispatcher) Deliver(ctx context.Context, job Job) error {
	ctx, span := otel.Tracer("fleetmdm/push").Start(ctx, "push.deliver")
	defer span.End()
	span.SetAttributes(attribute.String("device_id", job.DeviceID.String()))

	metrics := observability.Current()

	device, err := d.devices.GetByID(dbctx.Context{Ctx: ctx}, job.DeviceID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.ObservePush("failed", 0)
		return &TransportError{DeviceID: job.DeviceID, Err: err}
	}
	if !device.Pushable() {
		d.log.Debug("Device has no push token; skipping", "device_id", job.DeviceID)
		metrics.ObservePush("skipped", 0)
		return nil
	}
	target := Target{
		DeviceID:  device.ID,
		Token:     device.PushToken,
		PushMagic: device.PushMagic,
		Topic:     device.Topic,
	}

	var lastErr error
	attempt := 1
	for ; attempt <= d.cfg.MaxAttempts; attempt++ {
		pushCtx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
		lastErr = d.transport.Push(pushCtx, target)
		cancel()
		if lastErr == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			metrics.ObservePush("delivered", attempt)
			return nil
		}
		d.log.Debug("Push attempt failed", "device_id", job.DeviceID, "attempt", attempt, "error", lastErr)
		if attempt == d.cfg.MaxAttempts {
			break
		}
		if !sleepCtx(ctx, backoff(d.cfg.RetryBase, attempt)) {
			lastErr = ctx.Err()
			break
		}
	}
	span.SetStatus(codes.Error, lastErr.Error())
	metrics.ObservePush("failed", min(attempt, d.cfg.MaxAttempts))
	return &TransportError{DeviceID: job.DeviceID, Err: lastErr}
}

const maxBackoff = 5 * time.Minute

// backoff is base·2^(attempt-1), capped at maxBackoff, with up to 50% jitter either way.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Millisecond
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d <<= 1
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d)+1)) - d/2
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
