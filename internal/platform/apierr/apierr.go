package apierr

import (
	"errors"
	"fmt"
	"net/http"

	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromSentinel maps the package sentinels onto an HTTP status, falling back to 500.
func FromSentinel(code string, err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, mdmerrors.ErrNotFound):
		return New(http.StatusNotFound, code, err)
	case errors.Is(err, mdmerrors.ErrInvalidArgument):
		return New(http.StatusBadRequest, code, err)
	case errors.Is(err, mdmerrors.ErrConflict):
		return New(http.StatusConflict, code, err)
	default:
		return New(http.StatusInternalServerError, code, err)
	}
}
