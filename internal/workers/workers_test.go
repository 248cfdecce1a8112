package workers

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"veyra/internal/chain"
	"veyra/internal/models"
	"veyra/internal/repositories"
	"veyra/internal/services/wallet"

	"github.com/ethereum/go-ethereum/crypto"
)

// memStore is an in-memory Store mirroring the lease and query
// semantics the workers rely on.
type memStore struct {
	txs     map[uint]*models.Transaction
	wallets map[uint]*models.Wallet
	assets  map[uint]*models.Asset
	nextID  uint
}

func newMemStore() *memStore {
	return &memStore{
		txs:     make(map[uint]*models.Transaction),
		wallets: make(map[uint]*models.Wallet),
		assets:  make(map[uint]*models.Asset),
		nextID:  1,
	}
}

func (m *memStore) Users() repositories.UserRepository               { return nil }
func (m *memStore) Assets() repositories.AssetRepository             { return &memAssets{m} }
func (m *memStore) Wallets() repositories.WalletRepository           { return &memWallets{m} }
func (m *memStore) Transactions() repositories.TransactionRepository { return &memTxs{m} }
func (m *memStore) Investments() repositories.InvestmentRepository   { return nil }
func (m *memStore) Referrals() repositories.ReferralRepository       { return nil }
func (m *memStore) ExecuteInTransaction(fn func(repositories.Store) error) error {
	return fn(m)
}

func (m *memStore) addTx(tx *models.Transaction) *models.Transaction {
	tx.ID = m.nextID
	m.nextID++
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	m.txs[tx.ID] = tx
	return tx
}

type memAssets struct{ m *memStore }

func (a *memAssets) Create(asset *models.Asset) error {
	asset.ID = a.m.nextID
	a.m.nextID++
	a.m.assets[asset.ID] = asset
	return nil
}
func (a *memAssets) GetByID(id uint) (*models.Asset, error) {
	asset, ok := a.m.assets[id]
	if !ok {
		return nil, repositories.ErrAssetNotFound
	}
	return asset, nil
}
func (a *memAssets) GetBySymbol(chain, symbol string) (*models.Asset, error) {
	for _, asset := range a.m.assets {
		if asset.Chain == chain && asset.Symbol == symbol {
			return asset, nil
		}
	}
	return nil, repositories.ErrAssetNotFound
}
func (a *memAssets) ListEnabled(string) ([]models.Asset, error) { return nil, nil }

type memWallets struct{ m *memStore }

func (w *memWallets) Create(wallet *models.Wallet) error {
	w.m.wallets[wallet.UserID] = wallet
	return nil
}
func (w *memWallets) GetByID(uint) (*models.Wallet, error) {
	return nil, repositories.ErrWalletNotFound
}
func (w *memWallets) GetByUserID(userID uint) (*models.Wallet, error) {
	wallet, ok := w.m.wallets[userID]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	return wallet, nil
}
func (w *memWallets) ApplyBalanceDeltas(uint, repositories.BalanceDeltas) error { return nil }
func (w *memWallets) TouchWithdrawal(uint) error                                { return nil }
func (w *memWallets) GetAsset(uint, uint) (*models.WalletAsset, error) {
	return nil, repositories.ErrAssetNotFound
}
func (w *memWallets) CreateAsset(*models.WalletAsset) error              { return nil }
func (w *memWallets) ApplyAssetDelta(uint, uint, string, *big.Int) error { return nil }

type memTxs struct{ m *memStore }

func (r *memTxs) Create(tx *models.Transaction) error {
	r.m.addTx(tx)
	return nil
}

func (r *memTxs) GetByID(id uint) (*models.Transaction, error) {
	tx, ok := r.m.txs[id]
	if !ok {
		return nil, repositories.ErrTransactionNotFound
	}
	return tx, nil
}

func (r *memTxs) ApplyUpdate(id uint, fields map[string]interface{}) error {
	tx, ok := r.m.txs[id]
	if !ok {
		return repositories.ErrTransactionNotFound
	}
	for col, v := range fields {
		switch col {
		case "tx_status":
			tx.TxStatus = v.(string)
		case "settlement_status":
			tx.SettlementStatus = v.(string)
		case "remarks":
			tx.Remarks = v.(string)
		case "error_reason":
			tx.ErrorReason = v.(string)
		case "amount_wei":
			tx.AmountWei = v.(string)
		case "receiver_address":
			tx.ReceiverAddress = v.(string)
		case "tx_hash":
			if v == nil {
				tx.TxHash = nil
			} else {
				h := v.(string)
				for _, other := range r.m.txs {
					if other.ID != id && other.TxHash != nil && *other.TxHash == h {
						return repositories.ErrDuplicateRecord
					}
				}
				tx.TxHash = &h
			}
		case "unique_index":
			u := v.(string)
			for _, other := range r.m.txs {
				if other.ID != id && other.UniqueIndex != nil && *other.UniqueIndex == u {
					return repositories.ErrDuplicateRecord
				}
			}
			tx.UniqueIndex = &u
		case "log_index":
			idx := v.(uint)
			tx.LogIndex = &idx
		case "block_number":
			bn := v.(uint64)
			tx.BlockNumber = &bn
		case "retry_count":
			tx.RetryCount = v.(int)
		case "swept_at":
			ts := v.(time.Time)
			tx.SweptAt = &ts
		default:
			return fmt.Errorf("unexpected column %q", col)
		}
	}
	tx.UpdatedAt = time.Now()
	return nil
}

func (r *memTxs) FindByUniqueIndex(uniqueIndex string) (*models.Transaction, error) {
	for _, tx := range r.m.txs {
		if tx.UniqueIndex != nil && *tx.UniqueIndex == uniqueIndex {
			return tx, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (r *memTxs) FindDepositByHash(chain, txHash, receiver string) (*models.Transaction, error) {
	for _, tx := range r.m.txs {
		if tx.Chain == chain && tx.TxType == models.TxTypeDeposit &&
			tx.TxHash != nil && *tx.TxHash == txHash && tx.ReceiverAddress == receiver {
			return tx, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (r *memTxs) leaseFree(tx *models.Transaction, leaseTimeout time.Duration) bool {
	return tx.LockedAt == nil || time.Since(*tx.LockedAt) > leaseTimeout
}

func (r *memTxs) ordered() []*models.Transaction {
	out := make([]*models.Transaction, 0, len(r.m.txs))
	for _, tx := range r.m.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memTxs) ListClaimable(q repositories.LeaseQuery, leaseTimeout time.Duration) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range r.ordered() {
		if tx.Chain != q.Chain || tx.TxType != q.TxType {
			continue
		}
		if q.TxStatus != "" && tx.TxStatus != q.TxStatus {
			continue
		}
		if q.SettlementStatus != "" && tx.SettlementStatus != q.SettlementStatus {
			continue
		}
		if q.RequireBlock && tx.BlockNumber == nil {
			continue
		}
		if q.RequireHash && tx.TxHash == nil {
			continue
		}
		if !r.leaseFree(tx, leaseTimeout) {
			continue
		}
		out = append(out, *tx)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (r *memTxs) ListRetryableWithdrawals(chain string, maxRetries, limit int, leaseTimeout time.Duration) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range r.ordered() {
		if tx.Chain != chain || tx.TxType != models.TxTypeWithdrawal {
			continue
		}
		if tx.TxStatus != models.TxStatusFailed || tx.SettlementStatus != models.SettlementFailed {
			continue
		}
		reason := strings.ToLower(tx.ErrorReason)
		if !strings.Contains(reason, "dropped") && !strings.Contains(reason, "timeout") && !strings.Contains(reason, "nonce") {
			continue
		}
		if tx.RetryCount >= maxRetries || !r.leaseFree(tx, leaseTimeout) {
			continue
		}
		out = append(out, *tx)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memTxs) ListSweepableDeposits(chain string, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range r.ordered() {
		if tx.Chain != chain || tx.TxType != models.TxTypeDeposit {
			continue
		}
		if tx.TxStatus != models.TxStatusCompleted || tx.SettlementStatus != models.SettlementCompleted {
			continue
		}
		if tx.SweptAt != nil {
			continue
		}
		out = append(out, *tx)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memTxs) ListByUser(userID uint, txType string, limit, offset int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range r.ordered() {
		if tx.UserID == userID && (txType == "" || tx.TxType == txType) {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memTxs) AcquireLock(id uint, workerID string, leaseTimeout time.Duration) (bool, error) {
	tx, ok := r.m.txs[id]
	if !ok {
		return false, nil
	}
	if !r.leaseFree(tx, leaseTimeout) {
		return false, nil
	}
	now := time.Now()
	tx.LockedAt = &now
	tx.LockedBy = &workerID
	return true, nil
}

func (r *memTxs) ReleaseLock(id uint) error {
	if tx, ok := r.m.txs[id]; ok {
		tx.LockedAt = nil
		tx.LockedBy = nil
	}
	return nil
}

func (r *memTxs) CleanStaleLocks(leaseTimeout time.Duration) (int64, error) {
	var n int64
	cutoff := time.Now().Add(-leaseTimeout)
	for _, tx := range r.m.txs {
		if tx.LockedAt != nil && tx.LockedAt.Before(cutoff) {
			tx.LockedAt = nil
			tx.LockedBy = nil
			n++
		}
	}
	return n, nil
}

// sentTransfer records one SendTransfer call on the fake chain client.
type sentTransfer struct {
	key      *ecdsa.PrivateKey
	token    string
	to       string
	amount   *big.Int
	gasLimit uint64
}

type sentNative struct {
	to     string
	amount *big.Int
}

// fakeChain is a scriptable chain.Client.
type fakeChain struct {
	head      uint64
	transfers []chain.TransferEvent
	receipts  map[string]*chain.Receipt
	inMempool map[string]bool

	tokenBalances  map[string]*big.Int
	nativeBalances map[string]*big.Int
	gasPrice       *big.Int
	gasEstimate    uint64

	sendErr       error
	sent          []sentTransfer
	sentNativeTxs []sentNative
	nextHash      int
}

func newFakeChain(head uint64) *fakeChain {
	return &fakeChain{
		head:           head,
		receipts:       make(map[string]*chain.Receipt),
		inMempool:      make(map[string]bool),
		tokenBalances:  make(map[string]*big.Int),
		nativeBalances: make(map[string]*big.Int),
		gasPrice:       big.NewInt(1),
		gasEstimate:    21000,
	}
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) { return c.head, nil }

func (c *fakeChain) FilterTransfers(_ context.Context, _, toAddr string, _, _ uint64) ([]chain.TransferEvent, error) {
	var out []chain.TransferEvent
	for _, ev := range c.transfers {
		if strings.EqualFold(ev.To, toAddr) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *fakeChain) NativeBalance(_ context.Context, address string) (*big.Int, error) {
	if b, ok := c.nativeBalances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *fakeChain) TokenBalance(_ context.Context, token, address string) (*big.Int, error) {
	if b, ok := c.tokenBalances[token+":"+address]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *fakeChain) EstimateTransferGas(context.Context, string, string, string, *big.Int) (uint64, error) {
	return c.gasEstimate, nil
}

func (c *fakeChain) SendTransfer(_ context.Context, key *ecdsa.PrivateKey, token, to string, amount *big.Int, gasLimit uint64) (string, error) {
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sent = append(c.sent, sentTransfer{key: key, token: token, to: to, amount: new(big.Int).Set(amount), gasLimit: gasLimit})
	c.nextHash++
	hash := fmt.Sprintf("0xhash%d", c.nextHash)
	c.inMempool[hash] = true
	return hash, nil
}

func (c *fakeChain) SendNative(_ context.Context, _ *ecdsa.PrivateKey, to string, amount *big.Int) (string, error) {
	c.sentNativeTxs = append(c.sentNativeTxs, sentNative{to: to, amount: new(big.Int).Set(amount)})
	c.nextHash++
	return fmt.Sprintf("0xhash%d", c.nextHash), nil
}

func (c *fakeChain) GetReceipt(_ context.Context, txHash string) (*chain.Receipt, error) {
	if r, ok := c.receipts[txHash]; ok {
		return r, nil
	}
	return nil, chain.ErrNotFound
}

func (c *fakeChain) TransactionExists(_ context.Context, txHash string) (bool, error) {
	if _, ok := c.receipts[txHash]; ok {
		return true, nil
	}
	return c.inMempool[txHash], nil
}

// ledgerCall records one wallet ledger mutation made by a worker.
type ledgerCall struct {
	userID  uint
	assetID uint
	amount  *big.Int
}

// fakeLedger implements the slice of wallet.Service the workers use.
type fakeLedger struct {
	credits   []ledgerCall
	debits    []ledgerCall
	recredits []ledgerCall
	key       *ecdsa.PrivateKey
}

func newFakeLedger() *fakeLedger {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &fakeLedger{key: key}
}

func (f *fakeLedger) CreateWallet(repositories.Store, uint) (*models.Wallet, error) { return nil, nil }
func (f *fakeLedger) GetWallet(uint) (*models.Wallet, error)                        { return nil, nil }
func (f *fakeLedger) Balance(context.Context, uint) (*wallet.BalanceSummary, error) { return nil, nil }

func (f *fakeLedger) CreditDeposit(_ context.Context, _ repositories.Store, userID, assetID uint, amount *big.Int) error {
	f.credits = append(f.credits, ledgerCall{userID, assetID, new(big.Int).Set(amount)})
	return nil
}

func (f *fakeLedger) DebitWithdrawal(_ context.Context, _ repositories.Store, userID, assetID uint, amount *big.Int) error {
	f.debits = append(f.debits, ledgerCall{userID, assetID, new(big.Int).Set(amount)})
	return nil
}

func (f *fakeLedger) RecreditWithdrawal(_ context.Context, _ repositories.Store, userID, assetID uint, amount *big.Int) error {
	f.recredits = append(f.recredits, ledgerCall{userID, assetID, new(big.Int).Set(amount)})
	return nil
}

func (f *fakeLedger) RequestWithdrawal(context.Context, uint, uint, string, *big.Int) (*models.Transaction, error) {
	return nil, nil
}
func (f *fakeLedger) CreateDepositIntent(context.Context, uint, uint) (*models.Transaction, error) {
	return nil, nil
}
func (f *fakeLedger) Transactions(uint, string, int, int) ([]models.Transaction, error) {
	return nil, nil
}
func (f *fakeLedger) SigningKey(*models.Wallet) (*ecdsa.PrivateKey, error) { return f.key, nil }
