// Package failure renders service errors as API responses.
package failure

import (
	"errors"
	"licensebot/entity"
	"licensebot/internal/entitlement"
	"licensebot/lib/api/response"
	"licensebot/lib/sl"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// Status maps a service error to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, entitlement.ErrProviderNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, entitlement.ErrPermissionDenied),
		errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entitlement.ErrQuotaExceeded),
		errors.Is(err, entitlement.ErrQuotaWouldExceed),
		errors.Is(err, entitlement.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, entitlement.ErrInvalidCount),
		errors.Is(err, entitlement.ErrTooMany),
		errors.Is(err, entitlement.ErrDurationTooLong),
		errors.Is(err, entitlement.ErrNoDefaultRole),
		errors.Is(err, entitlement.ErrWrongGroup):
		return http.StatusBadRequest
	case errors.Is(err, entitlement.ErrInvalidLicense),
		errors.Is(err, entitlement.ErrNoSubscription),
		errors.Is(err, entitlement.ErrRoleNotFound),
		errors.Is(err, entitlement.ErrGroupNotFound),
		errors.Is(err, entitlement.ErrMemberNotFound),
		errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Render writes the error response. Unexpected errors are logged and their
// details are not exposed.
func Render(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := Status(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
		message = "Request failed"
	} else {
		log.Debug("request rejected", sl.Err(err))
	}
	render.Status(r, status)
	render.JSON(w, r, response.Error(message))
}

// BadRequest answers a malformed request.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, response.Error(message))
}
