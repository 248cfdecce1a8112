package investment

import "errors"

// Service errors
var (
	ErrBelowMinimum       = errors.New("amount below minimum investment")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrInsufficientLocked = errors.New("insufficient locked holdings")
	ErrNoInvestments      = errors.New("no investments found")
	ErrCorruptLedger      = errors.New("corrupt ledger amount")
)
