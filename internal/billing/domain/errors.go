package domain

import "errors"

var (
	ErrAccountNotFound  = errors.New("billing_account_not_found")
	ErrUnmappableEvent  = errors.New("unmappable_event")
	ErrUnresolvablePlan = errors.New("unresolvable_plan")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidUser      = errors.New("invalid_user")
)
