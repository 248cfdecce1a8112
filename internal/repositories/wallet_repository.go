package repositories

import (
	"math/big"

	"veyra/internal/models"
)

// BalanceDeltas is one atomic multi-counter wallet mutation. Nil fields
// are left untouched. Negative deltas carry their own non-negativity
// guard in the UPDATE's WHERE clause, so the operation either applies in
// full or not at all.
type BalanceDeltas struct {
	Balance  *big.Int // totalBalanceWeiUSD (deposited, investable)
	Flexible *big.Int // totalFlexibleWeiUSD (withdrawable)
	Deposit  *big.Int // lifetime deposited counter
	Withdraw *big.Int // lifetime withdrawn counter
	Lock     *big.Int // index-asset quantity locked in investment
}

// WalletRepository defines wallet-related database operations.
type WalletRepository interface {
	Create(wallet *models.Wallet) error
	GetByID(id uint) (*models.Wallet, error)
	GetByUserID(userID uint) (*models.Wallet, error)

	// ApplyBalanceDeltas applies the deltas as one guarded UPDATE.
	// Returns ErrInsufficientBalance when a counter would go negative
	// and ErrWalletNotFound when the wallet does not exist.
	ApplyBalanceDeltas(userID uint, d BalanceDeltas) error

	// TouchWithdrawal stamps the wallet's last withdrawal time.
	TouchWithdrawal(userID uint) error

	// Asset sub-balances use an optimistic match on the last-read value;
	// a lost race surfaces as ErrConcurrentModification for the caller
	// to retry.
	GetAsset(walletID, assetID uint) (*models.WalletAsset, error)
	CreateAsset(asset *models.WalletAsset) error
	ApplyAssetDelta(walletID, assetID uint, lastReadWei string, deltaWei *big.Int) error
}
