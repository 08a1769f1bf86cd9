package chat

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated means the credential was missing or invalid.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the caller is authenticated but not a party to the conversation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the conversation or counterpart user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMalformedFrame means an inbound chat frame could not be parsed or lacks a required field.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrInvalidInput means a REST request carried an unusable value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransientStore means the persistence layer failed; the caller may retry.
	ErrTransientStore = errors.New("store unavailable")
	// ErrQueueFull means the dispatcher could not accept another notification.
	ErrQueueFull = errors.New("dispatch queue full")
)

// HTTPStatus maps a chat error to the status code of a REST response.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedFrame), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransientStore), errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the short machine-readable name of err used in error frames.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTransientStore), errors.Is(err, ErrQueueFull):
		return "unavailable"
	default:
		return "internal"
	}
}

// IsTerminal reports whether err must end the chat session instead of being echoed back.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrUnauthenticated)
}
