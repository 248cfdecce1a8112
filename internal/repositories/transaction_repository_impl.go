package repositories

import (
	"errors"
	"fmt"
	"time"

	"veyra/internal/models"

	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(tx *models.Transaction) error {
	if err := r.db.Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByID(id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) ApplyUpdate(id uint, fields map[string]interface{}) error {
	res := r.db.Model(&models.Transaction{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("failed to update transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *transactionRepository) FindByUniqueIndex(uniqueIndex string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("unique_index = ?", uniqueIndex).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) FindDepositByHash(chain, txHash, receiverAddress string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.
		Where("chain = ? AND tx_hash = ? AND receiver_address = ? AND tx_type = ?",
			chain, txHash, receiverAddress, models.TxTypeDeposit).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find deposit: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) claimableScope(leaseTimeout time.Duration) *gorm.DB {
	cutoff := time.Now().Add(-leaseTimeout)
	return r.db.Where("locked_at IS NULL OR locked_at < ?", cutoff)
}

func (r *transactionRepository) ListClaimable(q LeaseQuery, leaseTimeout time.Duration) ([]models.Transaction, error) {
	scope := r.claimableScope(leaseTimeout).
		Where("chain = ? AND tx_type = ?", q.Chain, q.TxType)
	if q.TxStatus != "" {
		scope = scope.Where("tx_status = ?", q.TxStatus)
	}
	if q.SettlementStatus != "" {
		scope = scope.Where("settlement_status = ?", q.SettlementStatus)
	}
	if q.RequireBlock {
		scope = scope.Where("block_number IS NOT NULL")
	}
	if q.RequireHash {
		scope = scope.Where("tx_hash IS NOT NULL")
	}

	var txs []models.Transaction
	if err := scope.Order("created_at ASC").Limit(q.Limit).Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list claimable transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) ListRetryableWithdrawals(chain string, maxRetries, limit int, leaseTimeout time.Duration) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.claimableScope(leaseTimeout).
		Where("chain = ? AND tx_type = ? AND tx_status = ? AND settlement_status = ?",
			chain, models.TxTypeWithdrawal, models.TxStatusFailed, models.SettlementFailed).
		Where("error_reason ~* ?", "dropped|timeout|nonce").
		Where("retry_count < ?", maxRetries).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable withdrawals: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) ListSweepableDeposits(chain string, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.
		Where("chain = ? AND tx_type = ? AND tx_status = ? AND settlement_status = ?",
			chain, models.TxTypeDeposit, models.TxStatusCompleted, models.SettlementCompleted).
		Where("swept_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sweepable deposits: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) ListByUser(userID uint, txType string, limit, offset int) ([]models.Transaction, error) {
	scope := r.db.Where("user_id = ?", userID)
	if txType != "" {
		scope = scope.Where("tx_type = ?", txType)
	}
	var txs []models.Transaction
	if err := scope.Order("created_at DESC").Limit(limit).Offset(offset).Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) AcquireLock(id uint, workerID string, leaseTimeout time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-leaseTimeout)
	res := r.db.Model(&models.Transaction{}).
		Where("id = ?", id).
		Where("locked_at IS NULL OR locked_at < ?", cutoff).
		Updates(map[string]interface{}{
			"locked_at": now,
			"locked_by": workerID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *transactionRepository) ReleaseLock(id uint) error {
	res := r.db.Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"locked_at": nil,
			"locked_by": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release lock: %w", res.Error)
	}
	return nil
}

func (r *transactionRepository) CleanStaleLocks(leaseTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-leaseTimeout)
	res := r.db.Model(&models.Transaction{}).
		Where("locked_at < ?", cutoff).
		Updates(map[string]interface{}{
			"locked_at": nil,
			"locked_by": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean stale locks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
