package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// ErrQueueEmpty means a Dequeue poll timed out; callers loop.
var ErrQueueEmpty = errors.New("push queue empty")

// Job is a request to wake one device.
type Job struct {
	DeviceID   uuid.UUID `json:"device_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	// Len is the number of jobs waiting.
	Len(ctx context.Context) (int64, error)
	Close() error
}

type memoryQueue struct {
	ch chan Job
}

// NewMemoryQueue is a process-local queue. Jobs are lost on restart; the commands they
// point at are not, and the next membership change or check-in picks them up.
func NewMemoryQueue(size int) Queue {
	if size < 1 {
		size = 1
	}
	return &memoryQueue{ch: make(chan Job, size)}
}

func (q *memoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("memory push queue full (%d)", cap(q.ch))
	}
}

func (q *memoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-q.ch:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *memoryQueue) Len(context.Context) (int64, error) { return int64(len(q.ch)), nil }

func (q *memoryQueue) Close() error { return nil }

type redisQueue struct {
	log  *logger.Logger
	rdb  *goredis.Client
	key  string
	poll time.Duration
}

// NewRedisQueue pushes jobs onto a Redis list (LPUSH) and pops them with BRPOP, so
// pending wake-ups survive a restart and are shared across replicas.
func NewRedisQueue(log *logger.Logger, rdb *goredis.Client, key string) (Queue, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if key == "" {
		key = "mdm:push"
	}
	return &redisQueue{
		log:  log.With("service", "RedisPushQueue"),
		rdb:  rdb,
		key:  key,
		poll: 2 * time.Second,
	}, nil
}

// DialRedis opens and pings a client the way the queue expects.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (q *redisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

func (q *redisQueue) Dequeue(ctx context.Context) (Job, error) {
	res, err := q.rdb.BRPop(ctx, q.poll, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return Job{}, ErrQueueEmpty
	}
	if err != nil {
		if ctx.Err() != nil {
			return Job{}, ctx.Err()
		}
		return Job{}, err
	}
	if len(res) != 2 {
		return Job{}, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		q.log.Warn("bad push job payload", "error", err)
		return Job{}, ErrQueueEmpty
	}
	return job, nil
}

func (q *redisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func (q *redisQueue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}
