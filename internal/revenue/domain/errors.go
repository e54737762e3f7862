package domain

import "errors"

var (
	ErrInvalidEventID  = errors.New("invalid_event_id")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrEventNotFound   = errors.New("revenue_event_not_found")
)
