package repositories

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"veyra/internal/models"

	"gorm.io/gorm"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(wallet *models.Wallet) error {
	if err := r.db.Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) GetByID(id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.First(&wallet, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByUserID(userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) ApplyBalanceDeltas(userID uint, d BalanceDeltas) error {
	sets := map[string]interface{}{}
	q := r.db.Model(&models.Wallet{}).Where("user_id = ?", userID)

	apply := func(column string, delta *big.Int) {
		if delta == nil || delta.Sign() == 0 {
			return
		}
		sets[column] = gorm.Expr(column+" + ?::numeric", delta.String())
		if delta.Sign() < 0 {
			// The guard rides in the WHERE clause so a counter can never
			// be driven negative, even under concurrent updates.
			q = q.Where(column+" + ?::numeric >= 0", delta.String())
		}
	}

	apply("total_balance_wei_usd", d.Balance)
	apply("total_flexible_wei_usd", d.Flexible)
	apply("total_deposit_wei_usd", d.Deposit)
	apply("total_withdraw_wei_usd", d.Withdraw)
	apply("total_lock_index_wei", d.Lock)

	if len(sets) == 0 {
		return nil
	}

	res := q.Updates(sets)
	if res.Error != nil {
		return fmt.Errorf("failed to apply balance deltas: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&models.Wallet{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check wallet: %w", err)
		}
		if count == 0 {
			return ErrWalletNotFound
		}
		return ErrInsufficientBalance
	}
	return nil
}

func (r *walletRepository) TouchWithdrawal(userID uint) error {
	res := r.db.Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Update("last_withdrawal_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("failed to stamp withdrawal time: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (r *walletRepository) GetAsset(walletID, assetID uint) (*models.WalletAsset, error) {
	var asset models.WalletAsset
	err := r.db.Where("wallet_id = ? AND asset_id = ?", walletID, assetID).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get wallet asset: %w", err)
	}
	return &asset, nil
}

func (r *walletRepository) CreateAsset(asset *models.WalletAsset) error {
	if err := r.db.Create(asset).Error; err != nil {
		return fmt.Errorf("failed to create wallet asset: %w", err)
	}
	return nil
}

func (r *walletRepository) ApplyAssetDelta(walletID, assetID uint, lastReadWei string, deltaWei *big.Int) error {
	res := r.db.Model(&models.WalletAsset{}).
		Where("wallet_id = ? AND asset_id = ? AND balance_wei = ?::numeric", walletID, assetID, lastReadWei).
		Where("balance_wei + ?::numeric >= 0", deltaWei.String()).
		Updates(map[string]interface{}{
			"balance_wei": gorm.Expr("balance_wei + ?::numeric", deltaWei.String()),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to apply asset delta: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}
