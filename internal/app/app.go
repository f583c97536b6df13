package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	mdmdb "github.com/yungbote/fleetmdm-backend/internal/data/db"
	"github.com/yungbote/fleetmdm-backend/internal/http"
	"github.com/yungbote/fleetmdm-backend/internal/observability"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

const serviceName = "fleetmdm"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *http.Server
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	dbService    *mdmdb.DatabaseService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	done         chan struct{}
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
	})
	metrics := observability.Init(log)

	dbService, err := mdmdb.NewDatabaseService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, theDB, serviceset)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       wireServer(log, metrics, cfg, handlerset),
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Metrics:      metrics,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the metrics collectors and, when PushInProcess is set, the push
// dispatcher.
func (a *App) Start(ctx context.Context) {
	a.start(ctx, a.Cfg.PushInProcess)
}

func (a *App) start(ctx context.Context, dispatch bool) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartQueueCollector(ctx, a.Log, 15*time.Second, a.Clients.PushQueue.Len)

	if !dispatch || a.Services.Dispatcher == nil {
		close(a.done)
		return
	}
	go func() {
		defer close(a.done)
		if err := a.Services.Dispatcher.Run(ctx); err != nil {
			a.Log.Error("Push dispatcher exited", "error", err)
		}
	}()
}

// Run serves the admin API until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "port", a.Cfg.Port)
	return a.Server.Run(ctx, ":"+a.Cfg.Port)
}

// RunWorker drains the push queue without serving the API. It blocks until ctx is
// cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	if a == nil || a.Services.Dispatcher == nil {
		return fmt.Errorf("app not initialized")
	}
	a.start(ctx, true)
	a.Log.Info("Push worker running", "workers", a.Cfg.Dispatcher.Workers)
	<-ctx.Done()
	return nil
}

// DrainPush runs the dispatcher until every queued wake-up has been picked up or timeout
// elapses. One-shot tools call it before Close so an in-memory queue is not discarded.
func (a *App) DrainPush(ctx context.Context, timeout time.Duration) error {
	if a == nil || a.Clients.PushQueue == nil || a.Services.Dispatcher == nil {
		return fmt.Errorf("app not initialized")
	}
	a.start(ctx, true)
	deadline := time.Now().Add(timeout)
	for {
		n, err := a.Clients.PushQueue.Len(ctx)
		if err != nil {
			return fmt.Errorf("push queue length: %w", err)
		}
		if n == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("push queue still holds %d wake-ups after %s", n, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		<-a.done
		a.cancel = nil
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
