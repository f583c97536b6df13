package app

import (
	"context"
	"fmt"

	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
	"github.com/yungbote/fleetmdm-backend/internal/push"
)

type Clients struct {
	PushQueue push.Queue
	Transport push.Transport
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	var queue push.Queue
	if cfg.RedisAddr != "" {
		rdb, err := push.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis push queue: %w", err)
		}
		queue, err = push.NewRedisQueue(log, rdb, cfg.PushQueueKey)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, err
		}
		log.Info("Using redis push queue", "addr", cfg.RedisAddr, "key", cfg.PushQueueKey)
	} else {
		queue = push.NewMemoryQueue(cfg.PushQueueSize)
		log.Info("Using in-memory push queue", "size", cfg.PushQueueSize)
	}

	return Clients{
		PushQueue: queue,
		Transport: push.NewLogTransport(log),
	}, nil
}

func (c Clients) Close() {
	if c.PushQueue != nil {
		_ = c.PushQueue.Close()
	}
}
