package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veyra/internal/chain"
	"veyra/internal/models"
	"veyra/internal/money"
	"veyra/internal/repositories"
	"veyra/internal/services/wallet"

	"github.com/sirupsen/logrus"
)

// Watcher drives deposits through their lifecycle on one chain: it
// scans for transfers into wallets with an open intent, waits out the
// confirmation window and finally credits the ledger.
type Watcher struct {
	chain   string
	client  chain.Client
	store   repositories.Store
	wallets wallet.Service
	id      string
	log     *logrus.Entry
}

// NewWatcher creates a deposit watcher for one chain.
func NewWatcher(chainName string, client chain.Client, store repositories.Store, wallets wallet.Service) *Watcher {
	id := newWorkerID("watcher-" + chainName)
	return &Watcher{
		chain:   chainName,
		client:  client,
		store:   store,
		wallets: wallets,
		id:      id,
		log:     logrus.WithFields(logrus.Fields{"worker": id, "chain": chainName}),
	}
}

// Run executes one watcher cycle. Each phase claims its rows through
// the lease columns, so overlapping cycles and concurrent instances
// never double-process a deposit.
func (w *Watcher) Run(ctx context.Context) error {
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain head: %w", err)
	}

	w.scanDepositIntents(ctx, head)
	w.promoteDetected()
	w.confirmDeposits(ctx, head)
	w.settleDeposits(ctx)
	w.cleanStaleLocks()
	return nil
}

// scanDepositIntents looks for ERC-20 transfers into wallets that have
// an open deposit intent, and fails intents nobody has funded for too
// long.
func (w *Watcher) scanDepositIntents(ctx context.Context, head uint64) {
	intents, err := w.store.Transactions().ListClaimable(repositories.LeaseQuery{
		Chain:            w.chain,
		TxType:           models.TxTypeDeposit,
		TxStatus:         models.TxStatusConfirmed,
		SettlementStatus: models.SettlementPending,
		Limit:            watcherBatchSize,
	}, leaseTimeout)
	if err != nil {
		w.log.WithError(err).Error("failed to list deposit intents")
		return
	}

	for i := range intents {
		intent := &intents[i]
		if !w.claim(intent.ID) {
			continue
		}
		if err := w.scanOneIntent(ctx, intent, head); err != nil {
			w.log.WithError(err).WithField("tx", intent.ID).Error("deposit scan failed")
		}
		w.release(intent.ID)
	}
}

func (w *Watcher) scanOneIntent(ctx context.Context, intent *models.Transaction, head uint64) error {
	userWallet, err := w.store.Wallets().GetByUserID(intent.UserID)
	if err != nil {
		return err
	}
	asset, err := w.store.Assets().GetByID(intent.AssetID)
	if err != nil {
		return err
	}

	from := uint64(0)
	if head > maxBlockRange {
		from = head - maxBlockRange
	}
	events, err := w.client.FilterTransfers(ctx, asset.Address, userWallet.Address, from, head)
	if err != nil {
		return fmt.Errorf("failed to filter transfers: %w", err)
	}

	if len(events) == 0 {
		if time.Since(intent.CreatedAt) > maxDepositWait {
			w.log.WithField("tx", intent.ID).Warn("deposit intent timed out")
			return w.store.Transactions().ApplyUpdate(intent.ID, map[string]interface{}{
				"tx_status":         models.TxStatusFailed,
				"settlement_status": models.SettlementFailed,
				"error_reason":      "deposit not detected within 12 hours",
			})
		}
		return nil
	}

	// One intent absorbs one transfer; further transfers to the same
	// wallet need their own intents.
	for _, ev := range events {
		matched, err := w.markDetected(intent, userWallet.Address, ev)
		if err != nil {
			return err
		}
		if matched {
			return nil
		}
	}
	return nil
}

// markDetected records a scanned transfer on the intent row unless the
// event was already captured by an earlier scan. The uniqueIndex column
// carries a sparse unique constraint, so two overlapping scans racing
// on the same log cannot both win.
func (w *Watcher) markDetected(intent *models.Transaction, receiver string, ev chain.TransferEvent) (bool, error) {
	uniqueIndex := fmt.Sprintf("%s:%s:%d", w.chain, ev.TxHash, ev.LogIndex)

	_, err := w.store.Transactions().FindByUniqueIndex(uniqueIndex)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repositories.ErrTransactionNotFound) {
		return false, err
	}
	_, err = w.store.Transactions().FindDepositByHash(w.chain, ev.TxHash, receiver)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repositories.ErrTransactionNotFound) {
		return false, err
	}

	err = w.store.Transactions().ApplyUpdate(intent.ID, map[string]interface{}{
		"amount_wei":       ev.Amount.String(),
		"tx_hash":          ev.TxHash,
		"log_index":        ev.LogIndex,
		"unique_index":     uniqueIndex,
		"block_number":     ev.BlockNumber,
		"receiver_address": receiver,
		"tx_status":        models.TxStatusDetected,
		"remarks":          fmt.Sprintf("deposit detected in block %d", ev.BlockNumber),
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateRecord) {
			w.log.WithField("uniqueIndex", uniqueIndex).Info("lost detection race, skipping")
			return false, nil
		}
		return false, err
	}

	w.log.WithFields(logrus.Fields{"tx": intent.ID, "uniqueIndex": uniqueIndex}).Info("deposit detected")
	return true, nil
}

// promoteDetected moves freshly detected deposits into the confirmation
// window.
func (w *Watcher) promoteDetected() {
	txs, err := w.store.Transactions().ListClaimable(repositories.LeaseQuery{
		Chain:    w.chain,
		TxType:   models.TxTypeDeposit,
		TxStatus: models.TxStatusDetected,
		Limit:    watcherBatchSize,
	}, leaseTimeout)
	if err != nil {
		w.log.WithError(err).Error("failed to list detected deposits")
		return
	}

	for _, tx := range txs {
		if !w.claim(tx.ID) {
			continue
		}
		err := w.store.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{
			"tx_status":         models.TxStatusConfirming,
			"settlement_status": models.SettlementProcessing,
			"remarks":           "waiting for confirmations",
		})
		if err != nil {
			w.log.WithError(err).WithField("tx", tx.ID).Error("failed to promote deposit")
		}
		w.release(tx.ID)
	}
}

// confirmDeposits checks receipts for deposits in the confirmation
// window and completes or fails them.
func (w *Watcher) confirmDeposits(ctx context.Context, head uint64) {
	txs, err := w.store.Transactions().ListClaimable(repositories.LeaseQuery{
		Chain:            w.chain,
		TxType:           models.TxTypeDeposit,
		TxStatus:         models.TxStatusConfirming,
		SettlementStatus: models.SettlementProcessing,
		RequireBlock:     true,
		RequireHash:      true,
		Limit:            watcherBatchSize,
	}, leaseTimeout)
	if err != nil {
		w.log.WithError(err).Error("failed to list confirming deposits")
		return
	}

	for i := range txs {
		tx := &txs[i]
		if !w.claim(tx.ID) {
			continue
		}
		if err := w.confirmOne(ctx, tx, head); err != nil {
			w.log.WithError(err).WithField("tx", tx.ID).Error("deposit confirmation failed")
		}
		w.release(tx.ID)
	}
}

func (w *Watcher) confirmOne(ctx context.Context, tx *models.Transaction, head uint64) error {
	receipt, err := w.client.GetReceipt(ctx, *tx.TxHash)
	if errors.Is(err, chain.ErrNotFound) {
		// Not mined yet; check again next cycle.
		return nil
	}
	if err != nil {
		return err
	}

	if receipt.Reverted {
		w.log.WithField("tx", tx.ID).Warn("deposit reverted on chain")
		return w.store.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{
			"tx_status":         models.TxStatusFailed,
			"settlement_status": models.SettlementFailed,
			"error_reason":      "transaction reverted",
		})
	}

	confirmations := uint64(0)
	if head >= *tx.BlockNumber {
		confirmations = head - *tx.BlockNumber
	}
	if confirmations < confirmationBlocks {
		return nil
	}

	w.log.WithFields(logrus.Fields{"tx": tx.ID, "confirmations": confirmations}).Info("deposit confirmed")
	return w.store.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{
		"tx_status":         models.TxStatusCompleted,
		"settlement_status": models.SettlementCrediting,
		"remarks":           fmt.Sprintf("confirmed with %d blocks", confirmations),
	})
}

// settleDeposits credits confirmed deposits to the wallet ledger. The
// credit and the settlement flip commit in one database transaction, so
// a crash between them cannot credit twice.
func (w *Watcher) settleDeposits(ctx context.Context) {
	txs, err := w.store.Transactions().ListClaimable(repositories.LeaseQuery{
		Chain:            w.chain,
		TxType:           models.TxTypeDeposit,
		TxStatus:         models.TxStatusCompleted,
		SettlementStatus: models.SettlementCrediting,
		Limit:            watcherBatchSize,
	}, leaseTimeout)
	if err != nil {
		w.log.WithError(err).Error("failed to list creditable deposits")
		return
	}

	for i := range txs {
		tx := &txs[i]
		if !w.claim(tx.ID) {
			continue
		}
		if err := w.settleOne(ctx, tx); err != nil {
			w.log.WithError(err).WithField("tx", tx.ID).Error("deposit settlement failed")
		}
		w.release(tx.ID)
	}
}

func (w *Watcher) settleOne(ctx context.Context, tx *models.Transaction) error {
	amount, err := money.Parse(tx.AmountWei)
	if err != nil {
		return fmt.Errorf("corrupt deposit amount %q: %w", tx.AmountWei, err)
	}

	err = w.store.ExecuteInTransaction(func(st repositories.Store) error {
		if err := w.wallets.CreditDeposit(ctx, st, tx.UserID, tx.AssetID, amount); err != nil {
			return err
		}
		return st.Transactions().ApplyUpdate(tx.ID, map[string]interface{}{
			"settlement_status": models.SettlementCompleted,
			"remarks":           "deposit settled",
		})
	})
	if err != nil {
		return err
	}

	w.log.WithFields(logrus.Fields{"tx": tx.ID, "user": tx.UserID}).Info("deposit settled")
	return nil
}

func (w *Watcher) cleanStaleLocks() {
	n, err := w.store.Transactions().CleanStaleLocks(leaseTimeout)
	if err != nil {
		w.log.WithError(err).Error("failed to clean stale locks")
		return
	}
	if n > 0 {
		w.log.WithField("count", n).Info("cleaned stale locks")
	}
}

func (w *Watcher) claim(id uint) bool {
	ok, err := w.store.Transactions().AcquireLock(id, w.id, leaseTimeout)
	if err != nil {
		w.log.WithError(err).WithField("tx", id).Error("failed to acquire lock")
		return false
	}
	return ok
}

func (w *Watcher) release(id uint) {
	if err := w.store.Transactions().ReleaseLock(id); err != nil {
		w.log.WithError(err).WithField("tx", id).Error("failed to release lock")
	}
}
