package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrInternalServer      = errors.New("internal server error")
	ErrRoomNotFound        = errors.New("room not found")
	ErrSessionEnded        = errors.New("session already ended")
	ErrInvalidTransition   = errors.New("invalid session status transition")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidIdentity     = errors.New("participant identity metadata missing userId or role")
	ErrUnknownEventType    = errors.New("unknown custom event type")
	ErrProviderRegistered  = errors.New("moderation provider already registered")
	ErrUnsupportedCheck    = errors.New("moderation provider does not support this check")
	ErrInvalidToken        = errors.New("invalid token")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidIdentity), errors.Is(err, ErrUnknownEventType):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionEnded), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrProviderRegistered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
