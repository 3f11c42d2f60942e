// Package apperr holds the error taxonomy shared by storage, services and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound reports a missing single entity.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports a caller whose role or ownership does not allow the action.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrUnauthenticated reports a request without a resolvable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConflict reports a uniqueness violation the caller must resolve.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientFunds reports a debit larger than the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ValidationError carries the offending field of a rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ExternalError wraps a failure of a third-party dependency.
type ExternalError struct {
	Service string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// External wraps err as a failure of service.
func External(service string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Service: service, Err: err}
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	var verr *ValidationError
	var xerr *ExternalError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.As(err, &xerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
