package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/fleetmdm-backend/internal/http/response"
	"github.com/yungbote/fleetmdm-backend/internal/services"
)

type ConfigHandler struct {
	config services.ConfigService
}

func NewConfigHandler(config services.ConfigService) *ConfigHandler {
	return &ConfigHandler{config: config}
}

// GET /api/config
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	cfg, err := h.config.Get(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "config_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"config": cfg})
}

// POST /api/config
func (h *ConfigHandler) CreateConfig(c *gin.Context) {
	var in services.ConfigInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	cfg, err := h.config.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, "create_config_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"config": cfg})
}

// PUT /api/config
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var in services.ConfigUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	cfg, err := h.config.Update(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, "update_config_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"config": cfg})
}
