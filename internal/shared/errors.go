package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a referenced client/visit/sale is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a missing or malformed required field.
	ErrValidation = errors.New("validation failed")
	// ErrClientInactive blocks operations against a deactivated client.
	ErrClientInactive = errors.New("client is inactive")
	// ErrMissingCompany indicates no company was selected for the visit.
	ErrMissingCompany = errors.New("company required")
	// ErrGeolocationRequired indicates no device position is available yet.
	ErrGeolocationRequired = errors.New("geolocation required")
	// ErrGeolocationDenied indicates the position capability was refused.
	ErrGeolocationDenied = errors.New("geolocation denied")
	// ErrVisitFinalized rejects mutation of a visit in a terminal status.
	ErrVisitFinalized = errors.New("visit already finalized")
	// ErrConfirmationRequired gates destructive admin operations.
	ErrConfirmationRequired = errors.New("explicit confirmation required")
	// ErrForbidden indicates the actor's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// StoreError carries the backend failure code/message for diagnostics.
type StoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("store error %s: %s", e.Code, e.Message)
	}
	return "store error: " + e.Message
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStore converts a datastore failure into a StoreError, preserving the
// postgres code when present. Nil passes through.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &StoreError{Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	return &StoreError{Message: err.Error(), Err: err}
}
