package models

import "time"

// Wallet holds one user's custodial identity and ledger counters.
//
// Balance counters are 18-decimal scaled integers stored as numeric
// strings ("wei"). They are mutated only through atomic SQL increments
// in the wallet repository, never by read-modify-write, so none of them
// can go negative under concurrent workers.
type Wallet struct {
	ID     uint `gorm:"primarykey"`
	UserID uint `gorm:"uniqueIndex;not null"`

	// Chain identity. The private key is stored hybrid-encrypted: the
	// AES key is encrypted under the operator RSA public key, and the
	// GCM nonce is derived from (userID, salt) so it is never stored.
	Address               string `gorm:"not null"`
	EncryptedPrivateKey   string `gorm:"not null"`
	EncryptedSymmetricKey string `gorm:"not null"`
	Salt                  string `gorm:"not null"`

	// Ledger counters, wei-denominated USD unless stated otherwise.
	TotalBalanceWeiUSD  string `gorm:"type:numeric(78,0);default:0"`
	TotalFlexibleWeiUSD string `gorm:"type:numeric(78,0);default:0"`
	TotalDepositWeiUSD  string `gorm:"type:numeric(78,0);default:0"`
	TotalWithdrawWeiUSD string `gorm:"type:numeric(78,0);default:0"`

	// Index-asset quantity locked in investment (18-decimal units).
	TotalLockIndexWei string `gorm:"type:numeric(78,0);default:0"`

	Assets []WalletAsset `gorm:"foreignKey:WalletID"`

	LastWithdrawalAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// WalletAsset is one raw token balance inside a wallet. Updates go through
// a compare-and-swap on the last-read balance so two concurrent credits
// cannot silently overwrite each other.
type WalletAsset struct {
	ID         uint   `gorm:"primarykey"`
	WalletID   uint   `gorm:"uniqueIndex:idx_wallet_asset;not null"`
	AssetID    uint   `gorm:"uniqueIndex:idx_wallet_asset;not null"`
	BalanceWei string `gorm:"type:numeric(78,0);default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
