package chat

import "errors"

var (
	// ErrAuthenticationFailed covers bad signatures, expired tokens and
	// tokens for users that no longer exist.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAccessDenied means the user is authenticated but not a
	// participant of the room they tried to touch.
	ErrAccessDenied = errors.New("access denied")

	// ErrValidationFailed rejects malformed payloads before any store
	// call is made.
	ErrValidationFailed = errors.New("validation failed")

	// ErrNotFoundOrForbidden is returned when an ownership-filtered
	// update matched zero rows. "Doesn't exist" and "not yours" are
	// deliberately indistinguishable to the client.
	ErrNotFoundOrForbidden = errors.New("not found or forbidden")

	// ErrPersistence wraps store failures surfaced to the caller.
	ErrPersistence = errors.New("persistence error")
)
