package httpx

import (
	"errors"
	"net/http"

	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Validation failures must reach the caller as structured rejections so the
// UI can render a message; they are never swallowed here.
func RespondError(w http.ResponseWriter, err error) {
	var storeErr *shared.StoreError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrMissingCompany),
		errors.Is(err, shared.ErrGeolocationRequired):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrClientInactive):
		Problem(w, http.StatusConflict, "Client Inactive", err.Error())
	case errors.Is(err, shared.ErrVisitFinalized):
		Problem(w, http.StatusConflict, "Visit Finalized", err.Error())
	case errors.Is(err, shared.ErrConfirmationRequired):
		Problem(w, http.StatusPreconditionRequired, "Confirmation Required", err.Error())
	case errors.Is(err, shared.ErrGeolocationDenied):
		Problem(w, http.StatusForbidden, "Geolocation Denied", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &storeErr):
		Problem(w, http.StatusBadGateway, "Store Error", storeErr.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
