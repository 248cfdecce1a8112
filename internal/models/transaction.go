package models

import "time"

// Transaction types
const (
	TxTypeDeposit    = "deposit"
	TxTypeWithdrawal = "withdrawal"
)

// Chain-side lifecycle (TxStatus). Deposits travel
// confirmed -> detected -> confirming -> completed; withdrawals travel
// pending -> broadcasting -> completed/failed.
const (
	TxStatusPending      = "pending"      // withdrawal requested
	TxStatusBroadcasting = "broadcasting" // withdrawal sent to the mempool
	TxStatusDetected     = "detected"     // deposit log seen on chain
	TxStatusConfirming   = "confirming"   // waiting for confirmations
	TxStatusConfirmed    = "confirmed"    // deposit intent opened by the user
	TxStatusCompleted    = "completed"
	TxStatusFailed       = "failed"
)

// Ledger-side lifecycle (SettlementStatus), tracked independently of the
// chain-side state.
const (
	SettlementPending    = "pending"
	SettlementProcessing = "processing"
	SettlementCrediting  = "crediting"
	SettlementCompleted  = "completed"
	SettlementFailed     = "failed"
)

// Transaction is one blockchain-facing money movement. Rows are append-only:
// workers mutate status fields under the row lease but never delete, so the
// table doubles as the audit trail.
type Transaction struct {
	ID      uint `gorm:"primarykey"`
	UserID  uint `gorm:"not null;index"`
	AssetID uint `gorm:"not null;index"`

	Chain     string `gorm:"not null;index:idx_chain_block"`
	TxType    string `gorm:"not null;index:idx_status_type"`
	AmountWei string `gorm:"type:numeric(78,0);not null;default:0"`

	ReceiverAddress string
	TxHash          *string `gorm:"uniqueIndex"`
	LogIndex        *uint
	BlockNumber     *uint64 `gorm:"index:idx_chain_block"`
	RetryCount      int     `gorm:"default:0"`

	TxStatus         string `gorm:"not null;default:'pending';index:idx_status_type"`
	SettlementStatus string `gorm:"not null;default:'pending';index"`

	// UniqueIndex is "chain:txHash:logIndex"; the sparse unique constraint
	// is the deposit idempotency guard against overlapping block scans.
	UniqueIndex *string `gorm:"uniqueIndex"`

	// Worker lease. A row is claimable when LockedAt is null or older
	// than the lease timeout.
	LockedAt *time.Time `gorm:"index"`
	LockedBy *string

	// SweptAt marks a settled deposit whose funds have left the user
	// deposit wallet; the sweeper never revisits a marked row.
	SweptAt *time.Time `gorm:"index"`

	Remarks     string
	ErrorReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}
