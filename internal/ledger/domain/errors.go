package domain

import "errors"

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidReason  = errors.New("invalid_reason")
	ErrEntryNotFound  = errors.New("ledger_entry_not_found")
)
