package engine

import "errors"

var (
	// ErrUnknownOrigin is returned when no module controller is registered for an event origin.
	ErrUnknownOrigin = errors.New("unknown interaction origin")

	// ErrInvalidEvent is returned for raw events a controller cannot interpret.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUserNotFound is returned by stores when no user matches.
	ErrUserNotFound = errors.New("user not found")

	// ErrMessageNotFound is returned by stores when no message matches.
	ErrMessageNotFound = errors.New("message not found")

	// ErrReactionNotFound is returned when deleting a reaction that is not stored.
	ErrReactionNotFound = errors.New("reaction not found")
)
