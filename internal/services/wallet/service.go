// Package wallet owns the custodial wallet ledger: key generation and
// custody, USD-valued balance counters, raw token sub-balances and the
// transaction rows that deposits and withdrawals travel through.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"veyra/internal/models"
	"veyra/internal/money"
	"veyra/internal/repositories"
	"veyra/internal/services/keycustody"
	"veyra/internal/services/price"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Asset balance updates are optimistic; a lost race is retried a few
// times before giving up.
const assetCASRetries = 3

// Service is the wallet ledger API.
type Service interface {
	// CreateWallet generates a fresh signing key for the user, seals it
	// with the custody service and persists the wallet row.
	CreateWallet(st repositories.Store, userID uint) (*models.Wallet, error)

	GetWallet(userID uint) (*models.Wallet, error)
	Balance(ctx context.Context, userID uint) (*BalanceSummary, error)

	// CreditDeposit moves a settled on-chain deposit into the ledger:
	// raw token sub-balance plus USD-valued investable and lifetime
	// deposit counters.
	CreditDeposit(ctx context.Context, st repositories.Store, userID, assetID uint, amountWei *big.Int) error

	// DebitWithdrawal charges a broadcast withdrawal to the ledger.
	// RecreditWithdrawal compensates it when the transaction later fails
	// on chain.
	DebitWithdrawal(ctx context.Context, st repositories.Store, userID, assetID uint, amountWei *big.Int) error
	RecreditWithdrawal(ctx context.Context, st repositories.Store, userID, assetID uint, amountWei *big.Int) error

	RequestWithdrawal(ctx context.Context, userID, assetID uint, toAddress string, amountWei *big.Int) (*models.Transaction, error)

	// CreateDepositIntent opens a watch window: the watcher only scans
	// chains for wallets with an open intent.
	CreateDepositIntent(ctx context.Context, userID, assetID uint) (*models.Transaction, error)

	Transactions(userID uint, txType string, limit, offset int) ([]models.Transaction, error)

	// SigningKey unseals a wallet's private key for the workers.
	SigningKey(w *models.Wallet) (*ecdsa.PrivateKey, error)
}

// AssetBalance is one token position valued at the current oracle price.
type AssetBalance struct {
	AssetID    uint   `json:"assetId"`
	Symbol     string `json:"symbol"`
	Chain      string `json:"chain"`
	BalanceWei string `json:"balanceWei"`
	Balance    string `json:"balance"`
	ValueUSD   string `json:"valueUsd"`
}

// BalanceSummary is the wallet view returned to clients. Key material is
// never included.
type BalanceSummary struct {
	Address          string         `json:"address"`
	TotalBalanceUSD  string         `json:"totalBalanceUsd"`
	TotalFlexibleUSD string         `json:"totalFlexibleUsd"`
	TotalDepositUSD  string         `json:"totalDepositUsd"`
	TotalWithdrawUSD string         `json:"totalWithdrawUsd"`
	LockedIndexQty   string         `json:"lockedIndexQty"`
	Assets           []AssetBalance `json:"assets"`
}

type service struct {
	store   repositories.Store
	custody *keycustody.Service
	oracle  price.Oracle
}

// NewService creates a wallet service.
func NewService(store repositories.Store, custody *keycustody.Service, oracle price.Oracle) Service {
	if store == nil {
		panic("store is required")
	}
	if custody == nil {
		panic("custody service is required")
	}
	if oracle == nil {
		panic("oracle is required")
	}
	return &service{store: store, custody: custody, oracle: oracle}
}

func (s *service) CreateWallet(st repositories.Store, userID uint) (*models.Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	privHex := hex.EncodeToString(crypto.FromECDSA(key))

	encKey, encSym, salt, err := s.custody.Encrypt(privHex, fmt.Sprint(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to seal wallet key: %w", err)
	}

	w := &models.Wallet{
		UserID:                userID,
		Address:               address,
		EncryptedPrivateKey:   encKey,
		EncryptedSymmetricKey: encSym,
		Salt:                  salt,
		TotalBalanceWeiUSD:    "0",
		TotalFlexibleWeiUSD:   "0",
		TotalDepositWeiUSD:    "0",
		TotalWithdrawWeiUSD:   "0",
		TotalLockIndexWei:     "0",
	}
	if err := st.Wallets().Create(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *service) GetWallet(userID uint) (*models.Wallet, error) {
	return s.store.Wallets().GetByUserID(userID)
}

func (s *service) Balance(ctx context.Context, userID uint) (*BalanceSummary, error) {
	w, err := s.store.Wallets().GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	summary := &BalanceSummary{
		Address:          w.Address,
		TotalBalanceUSD:  money.FormatUnits(mustParse(w.TotalBalanceWeiUSD)),
		TotalFlexibleUSD: money.FormatUnits(mustParse(w.TotalFlexibleWeiUSD)),
		TotalDepositUSD:  money.FormatUnits(mustParse(w.TotalDepositWeiUSD)),
		TotalWithdrawUSD: money.FormatUnits(mustParse(w.TotalWithdrawWeiUSD)),
		LockedIndexQty:   money.FormatUnits(mustParse(w.TotalLockIndexWei)),
	}

	for _, wa := range w.Assets {
		asset, err := s.store.Assets().GetByID(wa.AssetID)
		if err != nil {
			return nil, err
		}
		bal, err := money.Parse(wa.BalanceWei)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCorruptLedger, wa.BalanceWei)
		}
		usd, err := s.usdValue(ctx, asset, bal)
		if err != nil {
			return nil, err
		}
		summary.Assets = append(summary.Assets, AssetBalance{
			AssetID:    asset.ID,
			Symbol:     asset.Symbol,
			Chain:      asset.Chain,
			BalanceWei: wa.BalanceWei,
			Balance:    money.FormatUnits(bal),
			ValueUSD:   money.FormatUnits(usd),
		})
	}
	return summary, nil
}

func (s *service) CreditDeposit(ctx context.Context, st repositories.Store, userID, assetID uint, amountWei *big.Int) error {
	if amountWei == nil || amountWei.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, err := st.Assets().GetByID(assetID)
	if err != nil {
		return err
	}
	w, err := st.Wallets().GetByUserID(userID)
	if err != nil {
		return err
	}
	if err := s.applyAssetDelta(st, w.ID, assetID, amountWei); err != nil {
		return err
	}

	usd, err := s.usdValue(ctx, asset, amountWei)
	if err != nil {
		return err
	}
	return st.Wallets().ApplyBalanceDeltas(userID, repositories.BalanceDeltas{
		Balance: usd,
		Deposit: usd,
	})
}

func (s *service) DebitWithdrawal(ctx context.Context, st repositories.Store, userID, assetID uint, amountWei *big.Int) error {
	if amountWei == nil || amountWei.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, err := st.Assets().GetByID(assetID)
	if err != nil {
		return err
	}
	w, err := st.Wallets().GetByUserID(userID)
	if err != nil {
		return err
	}
	if err := s.applyAssetDelta(st, w.ID, assetID, money.Neg(amountWei)); err != nil {
		return err
	}

	usd, err := s.usdValue(ctx, asset, amountWei)
	if err != nil {
		return err
	}
	if err := st.Wallets().ApplyBalanceDeltas(userID, repositories.BalanceDeltas{
		Flexible: money.Neg(usd),
		Withdraw: usd,
	}); err != nil {
		return err
	}
	return st.Wallets().TouchWithdrawal(userID)
}

func (s *service) RecreditWithdrawal(ctx context.Context, st repositories.Store, userID, assetID uint, amountWei *big.Int) error {
	if amountWei == nil || amountWei.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, err := st.Assets().GetByID(assetID)
	if err != nil {
		return err
	}
	w, err := st.Wallets().GetByUserID(userID)
	if err != nil {
		return err
	}
	if err := s.applyAssetDelta(st, w.ID, assetID, amountWei); err != nil {
		return err
	}

	usd, err := s.usdValue(ctx, asset, amountWei)
	if err != nil {
		return err
	}
	return st.Wallets().ApplyBalanceDeltas(userID, repositories.BalanceDeltas{
		Flexible: usd,
		Withdraw: money.Neg(usd),
	})
}

func (s *service) RequestWithdrawal(ctx context.Context, userID, assetID uint, toAddress string, amountWei *big.Int) (*models.Transaction, error) {
	if amountWei == nil || amountWei.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !common.IsHexAddress(toAddress) {
		return nil, ErrInvalidAddress
	}
	asset, err := s.store.Assets().GetByID(assetID)
	if err != nil {
		return nil, err
	}
	if !asset.Enabled {
		return nil, ErrAssetDisabled
	}
	w, err := s.store.Wallets().GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	// The ledger debit happens when the sender broadcasts; this check
	// only rejects obviously unfunded requests early.
	flexible, err := money.Parse(w.TotalFlexibleWeiUSD)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptLedger, w.TotalFlexibleWeiUSD)
	}
	usd, err := s.usdValue(ctx, asset, amountWei)
	if err != nil {
		return nil, err
	}
	if flexible.Cmp(usd) < 0 {
		return nil, ErrInsufficientFunds
	}

	tx := &models.Transaction{
		UserID:           userID,
		AssetID:          assetID,
		Chain:            asset.Chain,
		TxType:           models.TxTypeWithdrawal,
		AmountWei:        money.Format(amountWei),
		ReceiverAddress:  common.HexToAddress(toAddress).Hex(),
		TxStatus:         models.TxStatusPending,
		SettlementStatus: models.SettlementPending,
		Remarks:          "Withdrawal requested",
	}
	if err := s.store.Transactions().Create(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *service) CreateDepositIntent(ctx context.Context, userID, assetID uint) (*models.Transaction, error) {
	asset, err := s.store.Assets().GetByID(assetID)
	if err != nil {
		return nil, err
	}
	if !asset.Enabled {
		return nil, ErrAssetDisabled
	}
	w, err := s.store.Wallets().GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		UserID:           userID,
		AssetID:          assetID,
		Chain:            asset.Chain,
		TxType:           models.TxTypeDeposit,
		AmountWei:        "0",
		ReceiverAddress:  w.Address,
		TxStatus:         models.TxStatusConfirmed,
		SettlementStatus: models.SettlementPending,
		Remarks:          "Awaiting deposit",
	}
	if err := s.store.Transactions().Create(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *service) Transactions(userID uint, txType string, limit, offset int) ([]models.Transaction, error) {
	return s.store.Transactions().ListByUser(userID, txType, limit, offset)
}

func (s *service) SigningKey(w *models.Wallet) (*ecdsa.PrivateKey, error) {
	privHex, err := s.custody.Decrypt(w.EncryptedPrivateKey, w.EncryptedSymmetricKey, fmt.Sprint(w.UserID), w.Salt)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, keycustody.ErrDecryptFailed
	}
	return key, nil
}

// applyAssetDelta retries the optimistic sub-balance update, creating
// the row on first credit.
func (s *service) applyAssetDelta(st repositories.Store, walletID, assetID uint, deltaWei *big.Int) error {
	for attempt := 0; attempt < assetCASRetries; attempt++ {
		wa, err := st.Wallets().GetAsset(walletID, assetID)
		if err != nil {
			if errors.Is(err, repositories.ErrAssetNotFound) {
				if deltaWei.Sign() < 0 {
					return ErrInsufficientFunds
				}
				return st.Wallets().CreateAsset(&models.WalletAsset{
					WalletID:   walletID,
					AssetID:    assetID,
					BalanceWei: money.Format(deltaWei),
				})
			}
			return err
		}

		current, err := money.Parse(wa.BalanceWei)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCorruptLedger, wa.BalanceWei)
		}
		if deltaWei.Sign() < 0 && new(big.Int).Add(current, deltaWei).Sign() < 0 {
			return ErrInsufficientFunds
		}

		err = st.Wallets().ApplyAssetDelta(walletID, assetID, wa.BalanceWei, deltaWei)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrConcurrentModification) {
			return err
		}
	}
	return ErrConcurrencyRetries
}

// usdValue prices a raw token amount in wei USD. Stablecoins are pinned
// to $1 so deposits do not depend on the oracle being up.
func (s *service) usdValue(ctx context.Context, asset *models.Asset, amountWei *big.Int) (*big.Int, error) {
	scaled := money.Scale(amountWei, asset.Decimals)
	if asset.CoinGeckoID == "tether" || asset.CoinGeckoID == "usd-coin" {
		return scaled, nil
	}
	priceStr, err := s.oracle.PriceUSD(ctx, asset.CoinGeckoID)
	if err != nil {
		return nil, err
	}
	priceWei, err := money.ParsePrice(priceStr)
	if err != nil {
		return nil, err
	}
	return money.QuoteValue(scaled, priceWei), nil
}

func mustParse(s string) *big.Int {
	v, err := money.Parse(s)
	if err != nil {
		return big.NewInt(0)
	}
	return v
}
