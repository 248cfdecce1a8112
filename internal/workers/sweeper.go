package workers

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"veyra/internal/chain"
	"veyra/internal/models"
	"veyra/internal/repositories"
	"veyra/internal/services/wallet"

	"github.com/sirupsen/logrus"
)

const (
	// Settled deposits are split between the admin cold wallet and the
	// keeper hot wallet that funds withdrawals.
	adminRatio = 60

	// gasBufferPercent pads the gas funding sent to user wallets.
	gasBufferPercent = 110

	sweeperBatchSize = 20
)

// Sweeper consolidates settled deposits: tokens sitting in user deposit
// wallets are moved to the admin cold wallet (60%) and the keeper hot
// wallet (40%), topping up the user wallet with native gas from the
// keeper when needed.
type Sweeper struct {
	chain        string
	client       chain.Client
	store        repositories.Store
	wallets      wallet.Service
	keeperUserID uint
	adminAddress string
	id           string
	log          *logrus.Entry
}

// NewSweeper creates a deposit sweeper for one chain. adminAddress is
// the cold wallet receiving the platform share.
func NewSweeper(chainName string, client chain.Client, store repositories.Store, wallets wallet.Service, keeperUserID uint, adminAddress string) *Sweeper {
	id := newWorkerID("sweeper-" + chainName)
	return &Sweeper{
		chain:        chainName,
		client:       client,
		store:        store,
		wallets:      wallets,
		keeperUserID: keeperUserID,
		adminAddress: adminAddress,
		id:           id,
		log:          logrus.WithFields(logrus.Fields{"worker": id, "chain": chainName}),
	}
}

// Run executes one sweep cycle. Wallets are processed sequentially; a
// failed sweep is logged and retried on a later cycle, since the tokens
// stay put until moved.
func (s *Sweeper) Run(ctx context.Context) error {
	deposits, err := s.store.Transactions().ListSweepableDeposits(s.chain, sweeperBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list sweepable deposits: %w", err)
	}
	if len(deposits) == 0 {
		return nil
	}

	keeperWallet, err := s.store.Wallets().GetByUserID(s.keeperUserID)
	if err != nil {
		return fmt.Errorf("failed to load keeper wallet: %w", err)
	}
	keeperKey, err := s.wallets.SigningKey(keeperWallet)
	if err != nil {
		return fmt.Errorf("failed to unseal keeper key: %w", err)
	}

	for i := range deposits {
		if err := s.sweepOne(ctx, &deposits[i], keeperWallet.Address, keeperKey); err != nil {
			s.log.WithError(err).WithField("tx", deposits[i].ID).Error("sweep failed")
		}
	}
	return nil
}

func (s *Sweeper) sweepOne(ctx context.Context, tx *models.Transaction, keeperAddress string, keeperKey *ecdsa.PrivateKey) error {
	userWallet, err := s.store.Wallets().GetByUserID(tx.UserID)
	if err != nil {
		return err
	}
	asset, err := s.store.Assets().GetByID(tx.AssetID)
	if err != nil {
		return err
	}

	total, err := s.client.TokenBalance(ctx, asset.Address, userWallet.Address)
	if err != nil {
		return fmt.Errorf("failed to read token balance: %w", err)
	}
	if total.Sign() == 0 {
		// Already swept on an earlier cycle; mark the row so it stops
		// occupying batch slots.
		return s.markSwept(tx.ID, "wallet already swept")
	}

	userKey, err := s.wallets.SigningKey(userWallet)
	if err != nil {
		return err
	}

	adminAmount := new(big.Int).Mul(total, big.NewInt(adminRatio))
	adminAmount.Quo(adminAmount, big.NewInt(100))
	keeperAmount := new(big.Int).Sub(total, adminAmount)

	gasAdmin, err := s.client.EstimateTransferGas(ctx, asset.Address, userWallet.Address, s.adminAddress, adminAmount)
	if err != nil {
		return fmt.Errorf("failed to estimate admin transfer: %w", err)
	}
	gasKeeper, err := s.client.EstimateTransferGas(ctx, asset.Address, userWallet.Address, keeperAddress, keeperAmount)
	if err != nil {
		return fmt.Errorf("failed to estimate keeper transfer: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to read gas price: %w", err)
	}

	gasNeeded := new(big.Int).SetUint64(gasAdmin + gasKeeper)
	gasNeeded.Mul(gasNeeded, gasPrice)
	gasNeeded.Mul(gasNeeded, big.NewInt(gasBufferPercent))
	gasNeeded.Quo(gasNeeded, big.NewInt(100))

	if err := s.fundGas(ctx, userWallet.Address, gasNeeded, keeperKey); err != nil {
		return err
	}

	adminHash, err := retryTx(ctx, func() (string, error) {
		return s.client.SendTransfer(ctx, userKey, asset.Address, s.adminAddress, adminAmount, gasAdmin)
	})
	if err != nil {
		return fmt.Errorf("admin sweep transfer failed: %w", err)
	}
	keeperHash, err := retryTx(ctx, func() (string, error) {
		return s.client.SendTransfer(ctx, userKey, asset.Address, keeperAddress, keeperAmount, gasKeeper)
	})
	if err != nil {
		return fmt.Errorf("keeper sweep transfer failed: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"tx":         tx.ID,
		"wallet":     userWallet.Address,
		"adminHash":  adminHash,
		"keeperHash": keeperHash,
	}).Info("deposit swept")
	return s.markSwept(tx.ID, "deposit swept")
}

// markSwept removes the deposit from the sweepable set.
func (s *Sweeper) markSwept(id uint, remarks string) error {
	return s.store.Transactions().ApplyUpdate(id, map[string]interface{}{
		"swept_at": time.Now(),
		"remarks":  remarks,
	})
}

// fundGas tops the user wallet up with native currency from the keeper
// when it cannot pay for the sweep transfers itself.
func (s *Sweeper) fundGas(ctx context.Context, address string, gasNeeded *big.Int, keeperKey *ecdsa.PrivateKey) error {
	native, err := s.client.NativeBalance(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to read native balance: %w", err)
	}
	if native.Cmp(gasNeeded) >= 0 {
		return nil
	}

	topUp := new(big.Int).Sub(gasNeeded, native)
	hash, err := retryTx(ctx, func() (string, error) {
		return s.client.SendNative(ctx, keeperKey, address, topUp)
	})
	if err != nil {
		return fmt.Errorf("gas top-up failed: %w", err)
	}
	s.log.WithFields(logrus.Fields{"wallet": address, "hash": hash}).Info("funded sweep gas")
	return nil
}
