package wallet

import "errors"

// Service errors
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidAddress     = errors.New("invalid receiver address")
	ErrAssetDisabled      = errors.New("asset is disabled")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrCorruptLedger      = errors.New("corrupt ledger amount")
	ErrConcurrencyRetries = errors.New("asset balance update retries exhausted")
)
