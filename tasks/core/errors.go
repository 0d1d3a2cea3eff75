package core

import "errors"

// Access errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Users errors
var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInvalidArgs   = errors.New("user invalid args")
	ErrBadCredentials    = errors.New("invalid username or password")
)

// Tasks errors
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskInvalidArgs = errors.New("task invalid args")
)

// History errors
var (
	ErrEntryNotFound    = errors.New("history entry not found")
	ErrEntryInvalidArgs = errors.New("history entry invalid args")
)

// ErrStore marks persistence failures. Adapters wrap it together with the cause.
var ErrStore = errors.New("store failure")

// Error kinds reported to clients.
const (
	KindUnauthorized = "unauthorized"
	KindForbidden    = "forbidden"
	KindNotFound     = "not_found"
	KindValidation   = "validation"
	KindConflict     = "conflict"
	KindStore        = "store"
	KindInternal     = "internal"
)

func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrBadCredentials):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrUserNotFound), errors.Is(err, ErrEntryNotFound):
		return KindNotFound
	case errors.Is(err, ErrTaskInvalidArgs), errors.Is(err, ErrUserInvalidArgs), errors.Is(err, ErrEntryInvalidArgs):
		return KindValidation
	case errors.Is(err, ErrUserAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrStore):
		return KindStore
	default:
		return KindInternal
	}
}
