package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/fleetmdm-backend/internal/http/response"
	"github.com/yungbote/fleetmdm-backend/internal/services"
)

type GroupHandler struct {
	groups     services.GroupService
	membership services.MembershipService
}

func NewGroupHandler(groups services.GroupService, membership services.MembershipService) *GroupHandler {
	return &GroupHandler{groups: groups, membership: membership}
}

// GET /api/groups
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_groups_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"groups": groups})
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// POST /api/groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		response.RespondServiceError(c, "create_group_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"group": group})
}

// GET /api/groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	detail, err := h.groups.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "group_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"group": detail})
}

// DELETE /api/groups/:id
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	out, err := h.groups.Delete(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "delete_group_failed", err)
		return
	}
	response.RespondOK(c, out)
}

type setGroupDevicesRequest struct {
	DeviceIDs []uuid.UUID `json:"device_ids"`
}

// PUT /api/groups/:id/devices
func (h *GroupHandler) SetGroupDevices(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	var req setGroupDevicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.membership.SetGroupDevices(c.Request.Context(), id, req.DeviceIDs)
	if err != nil {
		response.RespondServiceError(c, "set_group_devices_failed", err)
		return
	}
	response.RespondOK(c, out)
}

type setGroupProfilesRequest struct {
	ProfileIDs []uint `json:"profile_ids"`
}

// PUT /api/groups/:id/profiles
func (h *GroupHandler) SetGroupProfiles(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	var req setGroupProfilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.membership.SetGroupProfiles(c.Request.Context(), id, req.ProfileIDs)
	if err != nil {
		response.RespondServiceError(c, "set_group_profiles_failed", err)
		return
	}
	response.RespondOK(c, out)
}
