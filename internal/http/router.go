package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/fleetmdm-backend/internal/http/handlers"
	httpMW "github.com/yungbote/fleetmdm-backend/internal/http/middleware"
	"github.com/yungbote/fleetmdm-backend/internal/observability"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	HealthHandler      *httpH.HealthHandler
	DeviceHandler      *httpH.DeviceHandler
	GroupHandler       *httpH.GroupHandler
	ProfileHandler     *httpH.ProfileHandler
	CertificateHandler *httpH.CertificateHandler
	ConfigHandler      *httpH.ConfigHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Devices
		if cfg.DeviceHandler != nil {
			api.GET("/devices", cfg.DeviceHandler.ListDevices)
			api.POST("/devices", cfg.DeviceHandler.EnrollDevice)
			api.GET("/devices/:id", cfg.DeviceHandler.GetDevice)
			api.PUT("/devices/:id/groups", cfg.DeviceHandler.SetDeviceGroups)
			api.GET("/devices/:id/commands", cfg.DeviceHandler.ListDeviceCommands)
		}

		// Groups
		if cfg.GroupHandler != nil {
			api.GET("/groups", cfg.GroupHandler.ListGroups)
			api.POST("/groups", cfg.GroupHandler.CreateGroup)
			api.GET("/groups/:id", cfg.GroupHandler.GetGroup)
			api.DELETE("/groups/:id", cfg.GroupHandler.DeleteGroup)
			api.PUT("/groups/:id/devices", cfg.GroupHandler.SetGroupDevices)
			api.PUT("/groups/:id/profiles", cfg.GroupHandler.SetGroupProfiles)
		}

		// Profiles
		if cfg.ProfileHandler != nil {
			api.GET("/profiles", cfg.ProfileHandler.ListProfiles)
			api.POST("/profiles", cfg.ProfileHandler.CreateProfile)
			api.GET("/profiles/:id", cfg.ProfileHandler.GetProfile)
			api.PUT("/profiles/:id", cfg.ProfileHandler.UpdateProfile)
			api.PUT("/profiles/:id/groups", cfg.ProfileHandler.SetProfileGroups)
			api.DELETE("/profiles/:id", cfg.ProfileHandler.DeleteProfile)
		}

		// Certificates
		if cfg.CertificateHandler != nil {
			api.GET("/certificates", cfg.CertificateHandler.ListCertificates)
			api.POST("/certificates/requests", cfg.CertificateHandler.GenerateRequest)
			api.POST("/certificates/:kind", cfg.CertificateHandler.AddCertificate)
			api.DELETE("/certificates/:id", cfg.CertificateHandler.DeleteCertificate)
		}

		// Server config
		if cfg.ConfigHandler != nil {
			api.GET("/config", cfg.ConfigHandler.GetConfig)
			api.POST("/config", cfg.ConfigHandler.CreateConfig)
			api.PUT("/config", cfg.ConfigHandler.UpdateConfig)
		}
	}

	return r
}
