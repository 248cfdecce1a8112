package repositories

import (
	"time"

	"veyra/internal/models"
)

// LeaseQuery selects transactions for one worker phase. Only rows whose
// lease is absent or expired are returned; the winner of the subsequent
// AcquireLock call gets exclusive access.
type LeaseQuery struct {
	Chain            string
	TxType           string
	TxStatus         string
	SettlementStatus string
	RequireBlock     bool // only rows that already carry a block number
	RequireHash      bool // only rows that already carry a tx hash
	Limit            int
}

// TransactionRepository defines chain-transaction database operations.
type TransactionRepository interface {
	Create(tx *models.Transaction) error
	GetByID(id uint) (*models.Transaction, error)

	// ApplyUpdate patches the given columns on one row.
	ApplyUpdate(id uint, fields map[string]interface{}) error

	// Deposit idempotency lookups.
	FindByUniqueIndex(uniqueIndex string) (*models.Transaction, error)
	FindDepositByHash(chain, txHash, receiverAddress string) (*models.Transaction, error)

	ListClaimable(q LeaseQuery, leaseTimeout time.Duration) ([]models.Transaction, error)
	ListRetryableWithdrawals(chain string, maxRetries, limit int, leaseTimeout time.Duration) ([]models.Transaction, error)

	// ListSweepableDeposits returns settled deposits not yet marked
	// swept, oldest first, so a bounded batch always advances.
	ListSweepableDeposits(chain string, limit int) ([]models.Transaction, error)
	ListByUser(userID uint, txType string, limit, offset int) ([]models.Transaction, error)

	// Lease operations. AcquireLock sets lockedAt/lockedBy only when the
	// lease is absent or older than the timeout; exactly one concurrent
	// caller wins.
	AcquireLock(id uint, workerID string, leaseTimeout time.Duration) (bool, error)
	ReleaseLock(id uint) error
	CleanStaleLocks(leaseTimeout time.Duration) (int64, error)
}
