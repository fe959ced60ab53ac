// Package apierr is the error taxonomy surfaced to HTTP clients. Errors
// are sentinel values checked with errors.Is, wrapped at component
// boundaries with github.com/pkg/errors to keep a stack trace for the
// structured logger without disturbing the sentinel identity errors.Is
// relies on.
package apierr

import (
	"net/http"

	"github.com/pkg/errors"
)

// Sentinel errors, one per row of the HTTP status taxonomy below.
var (
	// Input (400)
	ErrInvalidFactbookCategory = errors.New("invalid factbook category")
	ErrInvalidNation           = errors.New("invalid nation")
	ErrInvalidUsername         = errors.New("invalid username")

	// Authn/z (401/403/409)
	ErrNoCredentials     = errors.New("no credentials provided")
	ErrExpiredJWT        = errors.New("expired jwt")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUserAlreadyExists = errors.New("user already exists")

	// Not found (404)
	ErrDispatchNotFound = errors.New("dispatch not found")
	ErrJobNotFound      = errors.New("job not found")

	// Internal (500)
	ErrInternal = errors.New("internal server error")
)

// NationStates wraps a remote <ERROR> message; every instance is distinct
// (it carries the remote's text) so it is not a sentinel — callers match it
// with errors.As.
type NationStates struct {
	Message string
}

func (e *NationStates) Error() string { return "nationstates: " + e.Message }

// StatusCode maps an error (sentinel, wrapped sentinel, or *NationStates)
// to the HTTP status it should produce. Unknown errors default to 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var ns *NationStates
	if errors.As(err, &ns) {
		return http.StatusInternalServerError
	}

	switch {
	case errors.Is(err, ErrInvalidFactbookCategory),
		errors.Is(err, ErrInvalidNation),
		errors.Is(err, ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoCredentials),
		errors.Is(err, ErrExpiredJWT):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrDispatchNotFound),
		errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the body text clients should see (a stringified cause
// for NationStates, a fixed sentence for everything else, since wrapped
// internal errors — SQL, transport, decode — should not leak detail to
// clients).
func Message(err error) string {
	var ns *NationStates
	if errors.As(err, &ns) {
		return ns.Message
	}

	switch {
	case errors.Is(err, ErrInvalidFactbookCategory):
		return "invalid factbook category"
	case errors.Is(err, ErrInvalidNation):
		return "invalid nation"
	case errors.Is(err, ErrInvalidUsername):
		return "invalid username"
	case errors.Is(err, ErrNoCredentials):
		return "no credentials provided"
	case errors.Is(err, ErrExpiredJWT):
		return "expired jwt"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUserAlreadyExists):
		return "user already exists"
	case errors.Is(err, ErrDispatchNotFound):
		return "dispatch not found"
	case errors.Is(err, ErrJobNotFound):
		return "job not found"
	default:
		return "internal server error"
	}
}
