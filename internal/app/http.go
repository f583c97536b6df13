package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/http"
	httpH "github.com/yungbote/fleetmdm-backend/internal/http/handlers"
	"github.com/yungbote/fleetmdm-backend/internal/observability"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Device      *httpH.DeviceHandler
	Group       *httpH.GroupHandler
	Profile     *httpH.ProfileHandler
	Certificate *httpH.CertificateHandler
	Config      *httpH.ConfigHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	ping := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return Handlers{
		Health:      httpH.NewHealthHandler(ping),
		Device:      httpH.NewDeviceHandler(services.Device, services.Membership),
		Group:       httpH.NewGroupHandler(services.Group, services.Membership),
		Profile:     httpH.NewProfileHandler(services.Profile, services.Membership),
		Certificate: httpH.NewCertificateHandler(services.Certificate),
		Config:      httpH.NewConfigHandler(services.Config),
	}
}

func wireServer(log *logger.Logger, metrics *observability.Metrics, cfg Config, handlers Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:                log,
		ServiceName:        serviceName,
		AllowedOrigins:     cfg.AllowedOrigins,
		Metrics:            metrics,
		HealthHandler:      handlers.Health,
		DeviceHandler:      handlers.Device,
		GroupHandler:       handlers.Group,
		ProfileHandler:     handlers.Profile,
		CertificateHandler: handlers.Certificate,
		ConfigHandler:      handlers.Config,
	})
}
