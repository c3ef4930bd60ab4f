package api

import (
	"errors"
	"net/http"
)

// AppError is an error with the HTTP status it maps to. Its message is
// shown to the client verbatim.
type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

func newAppError(code int, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

var (
	ErrBadRequest     = newAppError(http.StatusBadRequest, "bad request")
	ErrUnauthorized   = newAppError(http.StatusUnauthorized, "unauthorized")
	ErrForbidden      = newAppError(http.StatusForbidden, "forbidden")
	ErrNotFound       = newAppError(http.StatusNotFound, "not found")
	ErrInternalServer = newAppError(http.StatusInternalServerError, "internal server error")
	ErrInvalidToken   = newAppError(http.StatusUnauthorized, "invalid or expired token")
)

func NewBadRequestError(msg string) *AppError {
	return newAppError(http.StatusBadRequest, msg)
}

func NewNotFoundError(msg string) *AppError {
	return newAppError(http.StatusNotFound, msg)
}

// NewValidationError reports a request body or query that failed validation.
func NewValidationError(msg string) *AppError {
	return newAppError(http.StatusBadRequest, "validation failed: "+msg)
}

// HandleError writes err as a JSON error body. Anything that is not an
// AppError is hidden behind a generic 500.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = ErrInternalServer
	}
	JSONErrorMessage(w, appErr.Code, appErr.Message)
}
