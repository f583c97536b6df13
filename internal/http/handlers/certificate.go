package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	"github.com/yungbote/fleetmdm-backend/internal/http/response"
	"github.com/yungbote/fleetmdm-backend/internal/services"
)

type CertificateHandler struct {
	certs services.CertificateService
}

func NewCertificateHandler(certs services.CertificateService) *CertificateHandler {
	return &CertificateHandler{certs: certs}
}

// GET /api/certificates
func (h *CertificateHandler) ListCertificates(c *gin.Context) {
	listing, err := h.certs.List(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "list_certificates_failed", err)
		return
	}
	response.RespondOK(c, listing)
}

type addCertificateRequest struct {
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"private_key"`
}

// POST /api/certificates/:kind
func (h *CertificateHandler) AddCertificate(c *gin.Context) {
	var req addCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	cert, err := h.certs.Add(c.Request.Context(), mdm.CertificateKind(c.Param("kind")), req.Certificate, req.PrivateKey)
	if err != nil {
		response.RespondServiceError(c, "add_certificate_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"certificate": cert})
}

type certificateRequest struct {
	Kind    mdm.CertificateKind `json:"kind"`
	Subject map[string]string   `json:"subject"`
}

// POST /api/certificates/requests
func (h *CertificateHandler) GenerateRequest(c *gin.Context) {
	var req certificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	cert, err := h.certs.GenerateRequest(c.Request.Context(), req.Kind, req.Subject)
	if err != nil {
		response.RespondServiceError(c, "generate_certificate_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"certificate": cert})
}

// DELETE /api/certificates/:id
func (h *CertificateHandler) DeleteCertificate(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_certificate_id", err)
		return
	}
	if err := h.certs.Delete(c.Request.Context(), id); err != nil {
		response.RespondServiceError(c, "delete_certificate_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}
