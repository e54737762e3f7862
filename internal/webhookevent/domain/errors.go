package domain

import "errors"

var (
	ErrInvalidEventID = errors.New("invalid_event_id")
	ErrEventNotFound  = errors.New("event_not_found")
)
