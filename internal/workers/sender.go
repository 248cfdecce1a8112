package workers

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"veyra/internal/chain"
	"veyra/internal/models"
	"veyra/internal/money"
	"veyra/internal/repositories"
	"veyra/internal/services/wallet"

	"github.com/sirupsen/logrus"
)

// maxWithdrawalRetries bounds how often a dropped or nonce-raced
// withdrawal is re-queued before staying failed.
const maxWithdrawalRetries = 3

// Sender broadcasts pending withdrawals from the keeper hot wallet,
// confirms them and compensates the ledger when a broadcast transaction
// later fails on chain.
type Sender struct {
	chain        string
	client       chain.Client
	store        repositories.Store
	wallets      wallet.Service
	keeperUserID uint
	id           string
	log          *logrus.Entry

	keeperKey     *ecdsa.PrivateKey
	keeperAddress string
}

// NewSender creates a withdrawal sender for one chain. keeperUserID is
// the internal user whose wallet holds the pooled funds.
func NewSender(chainName string, client chain.Client, store repositories.Store, wallets wallet.Service, keeperUserID uint) *Sender {
	id := newWorkerID("sender-" + chainName)
	return &Sender{
		chain:        chainName,
		client:       client,
		store:        store,
		wallets:      wallets,
		keeperUserID: keeperUserID,
		id:           id,
		log:          logrus.WithFields(logrus.Fields{"worker": id, "chain": chainName}),
	}
}

// Run executes one sender cycle: broadcast, confirm, retry, unlock.
func (s *Sender) Run(ctx context.Context) error {
	if err := s.initKeeper(); err != nil {
		return err
	}

	s.broadcastPending(ctx)
	s.confirmBroadcast(ctx)
	s.requeueDropped()
	s.cleanStaleLocks()
	return nil
}

// initKeeper unseals the keeper signing key once per process.
func (s *Sender) initKeeper() error {
	if s.keeperKey != nil {
		return nil
	}
	keeperWallet, err := s.store.Wallets().GetByUserID(s.keeperUserID)
	if err != nil {
		return fmt.Errorf("failed to load keeper wallet: %w", err)
	}
	key, err := s.wallets.SigningKey(keeperWallet)
	if err != nil {
		return fmt.Errorf("failed to unseal keeper key: %w", err)
	}
	s.keeperKey = key
	s.keeperAddress = keeperWallet.Address
	return nil
}

// broadcastPending sends out claimable withdrawals. Besides pending
// rows it also picks up broadcasting ones: a crash mid-broadcast leaves
// a row in that state, and once its lease expires it is re-driven here,
// through the hash guard if a hash was already recorded.
func (s *Sender) broadcastPending(ctx context.Context) {
	for _, status := range []string{models.TxStatusPending, models.TxStatusBroadcasting} {
		txs, err := s.store.Transactions().ListClaimable(repositories.LeaseQuery{
			Chain:    s.chain,
			TxType:   models.TxTypeWithdrawal,
			TxStatus: status,
			Limit:    senderBatchSize,
		}, leaseTimeout)
		if err != nil {
			s.log.WithError(err).WithField("status", status).Error("failed to list withdrawals to broadcast")
			continue
		}

		// Sequential to keep the keeper nonce monotonic.
		for i := range txs {
			tx := &txs[i]
			if !s.claim(tx.ID) {
				continue
			}
			if err := s.broadcastOne(ctx, tx); err != nil {
				s.log.WithError(err).WithField("tx", tx.ID).Error("withdrawal broadcast failed")
				s.markBroadcastFailure(tx.ID, err)
			}
			s.release(tx.ID)
		}
	}
}

func (s *Sender) broadcastOne(ctx context.Context, tx *models.Transaction) error {
	if tx.ReceiverAddress == "" {
		return errors.New("withdrawal has no receiver address")
	}
	asset, err := s.store.Assets().GetByID(tx.AssetID)
	if err != nil {
		return err
	}
	amount, err := money.Parse(tx.AmountWei)
	if err != nil {
		return fmt.Errorf("corrupt withdrawal amount %q: %w", tx.AmountWei, err)
	}

	// A hash from an earlier crashed cycle means the transfer may
	// already be in flight; never broadcast it twice.
	if tx.TxHash != nil && *tx.TxHash != "" {
		return s.resumeBroadcast(ctx, tx, amount)
	}

	if err := s.store.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{
		"tx_status": models.TxStatusBroadcasting,
		"remarks":   "preparing transaction",
	}); err != nil {
		return err
	}

	// The estimate simulates against latest state, so a reverting
	// transfer fails here before anything hits the mempool.
	gas, err := s.client.EstimateTransferGas(ctx, asset.Address, s.keeperAddress, tx.ReceiverAddress, amount)
	if err != nil {
		return fmt.Errorf("gas estimation failed: %w", err)
	}
	gas = gas * 120 / 100

	hash, err := s.client.SendTransfer(ctx, s.keeperKey, asset.Address, tx.ReceiverAddress, amount, gas)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"tx": tx.ID, "hash": hash}).Info("withdrawal broadcast")

	return s.settleBroadcast(ctx, tx, amount, hash)
}

// resumeBroadcast handles a withdrawal that already carries a hash:
// if the chain knows the transaction the ledger debit is completed,
// otherwise the hash is cleared for a fresh send.
func (s *Sender) resumeBroadcast(ctx context.Context, tx *models.Transaction, amount *big.Int) error {
	hash := *tx.TxHash
	known := false

	if _, err := s.client.GetReceipt(ctx, hash); err == nil {
		known = true
	} else if !errors.Is(err, chain.ErrNotFound) {
		return err
	}
	if !known {
		exists, err := s.client.TransactionExists(ctx, hash)
		if err != nil {
			return err
		}
		known = exists
	}

	if known {
		s.log.WithFields(logrus.Fields{"tx": tx.ID, "hash": hash}).Info("withdrawal already in flight, resuming")
		return s.settleBroadcast(ctx, tx, amount, hash)
	}

	s.log.WithFields(logrus.Fields{"tx": tx.ID, "hash": hash}).Warn("stale withdrawal hash, rebroadcasting")
	if err := s.store.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{"tx_hash": nil}); err != nil {
		return err
	}
	tx.TxHash = nil
	return s.broadcastOne(ctx, tx)
}

// settleBroadcast records the broadcast and debits the ledger in one
// database transaction.
func (s *Sender) settleBroadcast(ctx context.Context, tx *models.Transaction, amount *big.Int, hash string) error {
	return s.store.ExecuteInTransaction(func(st repositories.Store) error {
		if err := st.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{
			"tx_hash":           hash,
			"tx_status":         models.TxStatusCompleted,
			"settlement_status": models.SettlementProcessing,
			"remarks":           "transaction submitted",
		}); err != nil {
			return err
		}
		return s.wallets.DebitWithdrawal(ctx, st, tx.UserID, tx.AssetID, amount)
	})
}

// markBroadcastFailure fails a withdrawal that never reached the
// mempool. Nothing was debited yet, so no compensation is needed.
func (s *Sender) markBroadcastFailure(id uint, cause error) {
	reason := "transaction failed"
	msg := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		reason = "insufficient funds for transaction"
	case strings.Contains(msg, "nonce"):
		reason = "nonce conflict, retry needed"
	case strings.Contains(msg, "gas"):
		reason = "gas estimation failed"
	case strings.Contains(msg, "revert"):
		reason = "transaction would revert"
	}

	err := s.store.Transactions().ApplyUpdate(id, map[string]interface{}{
		"tx_status":         models.TxStatusFailed,
		"settlement_status": models.SettlementFailed,
		"error_reason":      reason,
	})
	if err != nil {
		s.log.WithError(err).WithField("tx", id).Error("failed to mark withdrawal failed")
	}
}

func (s *Sender) confirmBroadcast(ctx context.Context) {
	txs, err := s.store.Transactions().ListClaimable(repositories.LeaseQuery{
		Chain:            s.chain,
		TxType:           models.TxTypeWithdrawal,
		TxStatus:         models.TxStatusCompleted,
		SettlementStatus: models.SettlementProcessing,
		RequireHash:      true,
		Limit:            senderBatchSize,
	}, leaseTimeout)
	if err != nil {
		s.log.WithError(err).Error("failed to list broadcast withdrawals")
		return
	}

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to read chain head")
		return
	}

	for i := range txs {
		tx := &txs[i]
		if !s.claim(tx.ID) {
			continue
		}
		if err := s.confirmOne(ctx, tx, head); err != nil {
			s.log.WithError(err).WithField("tx", tx.ID).Error("withdrawal confirmation failed")
		}
		s.release(tx.ID)
	}
}

func (s *Sender) confirmOne(ctx context.Context, tx *models.Transaction, head uint64) error {
	hash := *tx.TxHash

	receipt, err := s.client.GetReceipt(ctx, hash)
	if errors.Is(err, chain.ErrNotFound) {
		exists, err := s.client.TransactionExists(ctx, hash)
		if err != nil {
			return err
		}
		if exists {
			// Still in the mempool.
			return nil
		}
		// Dropped: re-credit and clear the hash so the retry pass can
		// queue a fresh broadcast.
		s.log.WithFields(logrus.Fields{"tx": tx.ID, "hash": hash}).Warn("withdrawal dropped from mempool")
		return s.compensate(ctx, tx, map[string]interface{}{
			"tx_status":         models.TxStatusFailed,
			"settlement_status": models.SettlementFailed,
			"error_reason":      "transaction dropped from mempool",
			"tx_hash":           nil,
		})
	}
	if err != nil {
		return err
	}

	if receipt.Reverted {
		s.log.WithFields(logrus.Fields{"tx": tx.ID, "hash": hash}).Warn("withdrawal reverted on chain")
		return s.compensate(ctx, tx, map[string]interface{}{
			"tx_status":         models.TxStatusFailed,
			"settlement_status": models.SettlementFailed,
			"error_reason":      "transaction reverted on chain",
		})
	}

	confirmations := uint64(0)
	if head >= receipt.BlockNumber {
		confirmations = head - receipt.BlockNumber
	}
	if confirmations < confirmationBlocks {
		return nil
	}

	s.log.WithFields(logrus.Fields{"tx": tx.ID, "hash": hash}).Info("withdrawal confirmed")
	return s.store.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{
		"settlement_status": models.SettlementCompleted,
		"remarks":           "withdrawn and confirmed on chain",
	})
}

// compensate fails the withdrawal and returns the debited amount to the
// ledger atomically.
func (s *Sender) compensate(ctx context.Context, tx *models.Transaction, fields map[string]interface{}) error {
	amount, err := money.Parse(tx.AmountWei)
	if err != nil {
		return fmt.Errorf("corrupt withdrawal amount %q: %w", tx.AmountWei, err)
	}
	return s.store.ExecuteInTransaction(func(st repositories.Store) error {
		if err := st.Transactions().ApplyUpdate(tx.ID, fields); err != nil {
			return err
		}
		return s.wallets.RecreditWithdrawal(ctx, st, tx.UserID, tx.AssetID, amount)
	})
}

// requeueDropped resets failed withdrawals with a transient failure
// cause back to pending, up to the retry cap.
func (s *Sender) requeueDropped() {
	txs, err := s.store.Transactions().ListRetryableWithdrawals(s.chain, maxWithdrawalRetries, maxWithdrawalRetries, leaseTimeout)
	if err != nil {
		s.log.WithError(err).Error("failed to list retryable withdrawals")
		return
	}

	for _, tx := range txs {
		if !s.claim(tx.ID) {
			continue
		}
		err := s.store.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{
			"tx_status":         models.TxStatusPending,
			"settlement_status": models.SettlementPending,
			"tx_hash":           nil,
			"error_reason":      "",
			"retry_count":       tx.RetryCount + 1,
			"remarks":           fmt.Sprintf("retry attempt %d", tx.RetryCount+1),
		})
		if err != nil {
			s.log.WithError(err).WithField("tx", tx.ID).Error("failed to requeue withdrawal")
		} else {
			s.log.WithFields(logrus.Fields{"tx": tx.ID, "attempt": tx.RetryCount + 1}).Info("withdrawal requeued")
		}
		s.release(tx.ID)
	}
}

func (s *Sender) cleanStaleLocks() {
	n, err := s.store.Transactions().CleanStaleLocks(leaseTimeout)
	if err != nil {
		s.log.WithError(err).Error("failed to clean stale locks")
		return
	}
	if n > 0 {
		s.log.WithField("count", n).Info("cleaned stale locks")
	}
}

func (s *Sender) claim(id uint) bool {
	ok, err := s.store.Transactions().AcquireLock(id, s.id, leaseTimeout)
	if err != nil {
		s.log.WithError(err).WithField("tx", id).Error("failed to acquire lock")
		return false
	}
	return ok
}

func (s *Sender) release(id uint) {
	if err := s.store.Transactions().ReleaseLock(id); err != nil {
		s.log.WithError(err).WithField("tx", id).Error("failed to release lock")
	}
}
