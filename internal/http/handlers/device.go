package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/http/response"
	"github.com/yungbote/fleetmdm-backend/internal/services"
)

type DeviceHandler struct {
	devices    services.DeviceService
	membership services.MembershipService
}

func NewDeviceHandler(devices services.DeviceService, membership services.MembershipService) *DeviceHandler {
	return &DeviceHandler{devices: devices, membership: membership}
}

// GET /api/devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_devices_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"devices": devices})
}

// POST /api/devices
func (h *DeviceHandler) EnrollDevice(c *gin.Context) {
	var in services.EnrollInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	device, err := h.devices.Enroll(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, "enroll_device_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"device": device})
}

// GET /api/devices/:id
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_device_id", err)
		return
	}
	detail, err := h.devices.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "device_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"device": detail})
}

type setDeviceGroupsRequest struct {
	GroupIDs []uint `json:"group_ids"`
}

// PUT /api/devices/:id/groups
func (h *DeviceHandler) SetDeviceGroups(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_device_id", err)
		return
	}
	var req setDeviceGroupsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.membership.SetDeviceGroups(c.Request.Context(), id, req.GroupIDs)
	if err != nil {
		response.RespondServiceError(c, "set_device_groups_failed", err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/devices/:id/commands?status=queued,sent&limit=50
func (h *DeviceHandler) ListDeviceCommands(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_device_id", err)
		return
	}
	var statuses []types.CommandStatus
	for _, s := range strings.Split(c.Query("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, types.CommandStatus(s))
		}
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	cmds, err := h.devices.Commands(c.Request.Context(), id, statuses, limit)
	if err != nil {
		response.RespondServiceError(c, "list_commands_failed", err)
		return
	}
	if cmds == nil {
		cmds = []*types.Command{}
	}
	response.RespondOK(c, gin.H{"device_id": id, "commands": cmds})
}

