package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	transferSelector  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

// EVMClient implements Client over a go-ethereum JSON-RPC connection.
type EVMClient struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to an EVM RPC endpoint and resolves its chain ID.
func Dial(ctx context.Context, rpcURL string) (*EVMClient, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to resolve chain id: %w", err)
	}
	return &EVMClient{eth: eth, chainID: chainID}, nil
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	c.eth.Close()
}

func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *EVMClient) FilterTransfers(ctx context.Context, token, toAddr string, fromBlock, toBlock uint64) ([]TransferEvent, error) {
	receiver := common.HexToAddress(toAddr)
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{common.HexToAddress(token)},
		Topics: [][]common.Hash{
			{transferTopic},
			nil,
			{common.BytesToHash(receiver.Bytes())},
		},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	events := make([]TransferEvent, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) < 3 || l.Removed {
			continue
		}
		events = append(events, TransferEvent{
			TxHash:      l.TxHash.Hex(),
			LogIndex:    l.Index,
			BlockNumber: l.BlockNumber,
			From:        common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
			To:          common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
			Amount:      new(big.Int).SetBytes(l.Data),
		})
	}
	return events, nil
}

func (c *EVMClient) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance: %w", err)
	}
	return bal, nil
}

func (c *EVMClient) TokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	tokenAddr := common.HexToAddress(token)
	data := append([]byte{}, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read token balance: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}

func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	return price, nil
}

func (c *EVMClient) EstimateTransferGas(ctx context.Context, token, from, to string, amount *big.Int) (uint64, error) {
	tokenAddr := common.HexToAddress(token)
	msg := ethereum.CallMsg{
		From: common.HexToAddress(from),
		To:   &tokenAddr,
		Data: transferCalldata(to, amount),
	}
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate transfer gas: %w", err)
	}
	return gas, nil
}

func (c *EVMClient) SendTransfer(ctx context.Context, key *ecdsa.PrivateKey, token, to string, amount *big.Int, gasLimit uint64) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(token), big.NewInt(0), gasLimit, gasPrice, transferCalldata(to, amount))
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to broadcast transfer: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (c *EVMClient) SendNative(ctx context.Context, key *ecdsa.PrivateKey, to string, amount *big.Int) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(to), amount, 21000, gasPrice, nil)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (c *EVMClient) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &Receipt{
		BlockNumber: receipt.BlockNumber.Uint64(),
		Reverted:    receipt.Status != types.ReceiptStatusSuccessful,
	}, nil
}

func (c *EVMClient) TransactionExists(ctx context.Context, txHash string) (bool, error) {
	_, _, err := c.eth.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up transaction: %w", err)
	}
	return true, nil
}

func transferCalldata(to string, amount *big.Int) []byte {
	data := append([]byte{}, transferSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(to).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
