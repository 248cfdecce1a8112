package workers

import (
	"context"
	"math/big"
	"testing"

	"veyra/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminColdAddress = "0x00000000000000000000000000000000000000ee"
	freshUserAddress = "0x00000000000000000000000000000000000000ff"
)

func settledDeposit(st *memStore, userID, assetID uint, receiver string) *models.Transaction {
	return st.addTx(&models.Transaction{
		UserID:           userID,
		AssetID:          assetID,
		Chain:            testChain,
		TxType:           models.TxTypeDeposit,
		TxStatus:         models.TxStatusCompleted,
		SettlementStatus: models.SettlementCompleted,
		AmountWei:        "5000000",
		ReceiverAddress:  receiver,
	})
}

func newSweeperFixture(t *testing.T) (*memStore, *fakeChain, *Sweeper, *models.Transaction) {
	t.Helper()
	st := newMemStore()
	st.wallets[7] = &models.Wallet{ID: 1, UserID: 7, Address: userAddress}
	st.wallets[keeperUserID] = &models.Wallet{ID: 2, UserID: keeperUserID, Address: keeperAddress}
	asset := &models.Asset{Symbol: "USDT", Chain: testChain, Address: tokenAddr, Decimals: 6, Enabled: true}
	require.NoError(t, st.Assets().Create(asset))
	tx := settledDeposit(st, 7, asset.ID, userAddress)

	client := newFakeChain(1000)
	sw := NewSweeper(testChain, client, st, newFakeLedger(), keeperUserID, adminColdAddress)
	return st, client, sw, tx
}

func TestSweeperSplitsBalance(t *testing.T) {
	_, client, sw, _ := newSweeperFixture(t)
	client.tokenBalances[tokenAddr+":"+userAddress] = big.NewInt(1000)
	client.nativeBalances[userAddress] = big.NewInt(1_000_000_000)

	require.NoError(t, sw.Run(context.Background()))

	require.Len(t, client.sent, 2)
	assert.Equal(t, adminColdAddress, client.sent[0].to)
	assert.Equal(t, big.NewInt(600), client.sent[0].amount)
	assert.Equal(t, keeperAddress, client.sent[1].to)
	assert.Equal(t, big.NewInt(400), client.sent[1].amount)

	// Wallet already had gas; no top-up.
	assert.Empty(t, client.sentNativeTxs)
}

func TestSweeperFundsGasWhenShort(t *testing.T) {
	_, client, sw, _ := newSweeperFixture(t)
	client.tokenBalances[tokenAddr+":"+userAddress] = big.NewInt(1000)
	client.gasEstimate = 50000
	client.gasPrice = big.NewInt(10)

	require.NoError(t, sw.Run(context.Background()))

	// Two transfers at 50k gas each, price 10, plus the 10% buffer.
	wantGas := big.NewInt(2 * 50000 * 10 * 110 / 100)
	require.Len(t, client.sentNativeTxs, 1)
	assert.Equal(t, userAddress, client.sentNativeTxs[0].to)
	assert.Equal(t, wantGas, client.sentNativeTxs[0].amount)

	require.Len(t, client.sent, 2)
}

func TestSweeperMarksEmptyWalletSwept(t *testing.T) {
	_, client, sw, tx := newSweeperFixture(t)

	require.NoError(t, sw.Run(context.Background()))

	assert.Empty(t, client.sent)
	assert.Empty(t, client.sentNativeTxs)
	// The drained row leaves the sweepable set instead of occupying a
	// batch slot forever.
	assert.NotNil(t, tx.SweptAt)
}

func TestSweeperSweepsEachDepositOnce(t *testing.T) {
	_, client, sw, tx := newSweeperFixture(t)
	client.tokenBalances[tokenAddr+":"+userAddress] = big.NewInt(1000)
	client.nativeBalances[userAddress] = big.NewInt(1_000_000_000)

	require.NoError(t, sw.Run(context.Background()))
	require.Len(t, client.sent, 2)
	require.NotNil(t, tx.SweptAt)

	// A later cycle lists nothing for this deposit even though the fake
	// chain still reports a balance.
	require.NoError(t, sw.Run(context.Background()))
	assert.Len(t, client.sent, 2)
}

func TestSweeperAdvancesPastSweptBacklog(t *testing.T) {
	st, client, sw, _ := newSweeperFixture(t)
	st.wallets[8] = &models.Wallet{ID: 3, UserID: 8, Address: freshUserAddress}

	// A full batch of older deposits whose wallets were already drained,
	// then one fresh funded deposit behind them.
	for i := 1; i < sweeperBatchSize; i++ {
		settledDeposit(st, 7, 1, userAddress)
	}
	fresh := settledDeposit(st, 8, 1, freshUserAddress)
	client.tokenBalances[tokenAddr+":"+freshUserAddress] = big.NewInt(1000)
	client.nativeBalances[freshUserAddress] = big.NewInt(1_000_000_000)

	// First cycle's batch is filled by the drained backlog, which gets
	// marked swept instead of being re-listed.
	require.NoError(t, sw.Run(context.Background()))
	assert.Empty(t, client.sent)

	// The backlog is gone, so the fresh deposit is reached and swept.
	require.NoError(t, sw.Run(context.Background()))
	require.Len(t, client.sent, 2)
	assert.Equal(t, big.NewInt(600), client.sent[0].amount)
	assert.Equal(t, big.NewInt(400), client.sent[1].amount)
	assert.NotNil(t, fresh.SweptAt)
}
