package referral

import "errors"

// Service errors
var (
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrCorruptAmount       = errors.New("corrupt stored amount")
)
