package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/fleetmdm-backend/internal/platform/apierr"
	"github.com/yungbote/fleetmdm-backend/internal/reconcile"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps a service error onto a status via the shared sentinels.
// Failed command appends always surface as 500 with their own code.
func RespondServiceError(c *gin.Context, code string, err error) {
	var perr *reconcile.CommandPersistenceError
	if errors.As(err, &perr) {
		RespondError(c, http.StatusInternalServerError, "command_persistence_failed", err)
		return
	}
	ae := apierr.FromSentinel(code, err)
	if ae.Code == "" {
		ae.Code = code
	}
	RespondError(c, ae.Status, ae.Code, ae.Err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
