package repositories

import "errors"

var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrAssetNotFound          = errors.New("asset not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrReferralNotFound       = errors.New("referral record not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrDuplicateRecord        = errors.New("duplicate record")
)
