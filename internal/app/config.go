package app

import (
	"time"

	"github.com/yungbote/fleetmdm-backend/internal/platform/envutil"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
	"github.com/yungbote/fleetmdm-backend/internal/push"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	MetricsAddr    string

	// RedisAddr selects the durable push queue. Empty means an in-process queue.
	RedisAddr     string
	PushQueueKey  string
	PushQueueSize int
	// PushInProcess runs the dispatcher inside the API process. Turn it off when a
	// separate push worker drains the Redis queue.
	PushInProcess bool
	Dispatcher    push.DispatcherConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:           envutil.String("PORT", "8080", log),
		Environment:    envutil.String("APP_ENV", "development", log),
		AllowedOrigins: envutil.CSV("CORS_ALLOWED_ORIGINS", nil, log),
		MetricsAddr:    envutil.String("METRICS_ADDR", "", log),

		RedisAddr:     envutil.String("REDIS_ADDR", "", log),
		PushQueueKey:  envutil.String("PUSH_QUEUE_KEY", "mdm:push", log),
		PushQueueSize: envutil.Int("PUSH_QUEUE_SIZE", 1024, log),
		PushInProcess: envutil.Bool("PUSH_INPROCESS", true, log),
		Dispatcher: push.DispatcherConfig{
			Workers:     envutil.Int("PUSH_WORKERS", 4, log),
			MaxAttempts: envutil.Int("PUSH_MAX_ATTEMPTS", 5, log),
			RetryBase:   time.Duration(envutil.Int("PUSH_RETRY_BASE_MS", 500, log)) * time.Millisecond,
			PushTimeout: time.Duration(envutil.Int("PUSH_TIMEOUT_MS", 10000, log)) * time.Millisecond,
		},
	}
	if cfg.RedisAddr == "" && !cfg.PushInProcess {
		log.Warn("PUSH_INPROCESS=false needs REDIS_ADDR; running the dispatcher in-process")
		cfg.PushInProcess = true
	}
	return cfg
}
