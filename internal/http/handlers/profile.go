package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	"github.com/yungbote/fleetmdm-backend/internal/http/response"
	"github.com/yungbote/fleetmdm-backend/internal/services"
)

type ProfileHandler struct {
	profiles   services.ProfileService
	membership services.MembershipService
}

func NewProfileHandler(profiles services.ProfileService, membership services.MembershipService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, membership: membership}
}

// GET /api/profiles
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	profiles, err := h.profiles.List(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_profiles_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"profiles": profiles})
}

type createProfileRequest struct {
	DisplayName  string                   `json:"display_name"`
	Restrictions *mdm.RestrictionsPayload `json:"restrictions"`
}

// POST /api/profiles
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	restrictions := mdm.DefaultRestrictions()
	if req.Restrictions != nil {
		restrictions = *req.Restrictions
	}
	profile, err := h.profiles.Create(c.Request.Context(), req.DisplayName, restrictions)
	if err != nil {
		response.RespondServiceError(c, "create_profile_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"profile": profile})
}

// GET /api/profiles/:id
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_profile_id", err)
		return
	}
	detail, err := h.profiles.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "profile_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"profile": detail})
}

type updateProfileRequest struct {
	Restrictions *mdm.RestrictionsPayload `json:"restrictions"`
}

// PUT /api/profiles/:id
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_profile_id", err)
		return
	}
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Restrictions == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errMissingField("restrictions"))
		return
	}
	profile, out, err := h.profiles.UpdateRestrictions(c.Request.Context(), id, *req.Restrictions)
	if err != nil {
		response.RespondServiceError(c, "update_profile_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"profile":          profile,
		"notified_devices": out.NotifiedDevices,
		"commands":         out.Commands,
	})
}

type setProfileGroupsRequest struct {
	GroupIDs []uint `json:"group_ids"`
}

// PUT /api/profiles/:id/groups
func (h *ProfileHandler) SetProfileGroups(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_profile_id", err)
		return
	}
	var req setProfileGroupsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.membership.SetProfileGroups(c.Request.Context(), id, req.GroupIDs)
	if err != nil {
		response.RespondServiceError(c, "set_profile_groups_failed", err)
		return
	}
	response.RespondOK(c, out)
}

// DELETE /api/profiles/:id
func (h *ProfileHandler) DeleteProfile(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_profile_id", err)
		return
	}
	out, err := h.profiles.Delete(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "delete_profile_failed", err)
		return
	}
	response.RespondOK(c, out)
}
