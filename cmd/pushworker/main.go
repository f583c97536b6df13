package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/fleetmdm-backend/internal/app"
	"github.com/yungbote/fleetmdm-backend/internal/platform/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Cfg.RedisAddr == "" {
		a.Log.Warn("REDIS_ADDR is empty; the worker only sees wake-ups raised by its own process")
	}
	if err := a.RunWorker(ctx); err != nil {
		fmt.Printf("push worker exited: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}
