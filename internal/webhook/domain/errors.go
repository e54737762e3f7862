package domain

import "errors"

var (
	ErrUnknownProvider  = errors.New("unknown_provider")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	// ErrEventIgnored marks event types this engine does not consume; the
	// delivery is acknowledged without processing.
	ErrEventIgnored = errors.New("event_ignored")
)
