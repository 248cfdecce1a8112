// Package chain wraps read and write access to EVM-compatible chains.
// Core code depends only on the Client interface; the go-ethereum
// implementation lives in evm.go.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
)

var (
	// ErrNotFound means a transaction or receipt is not (yet) known to
	// the node: it may still be in flight. Distinct from ErrReverted.
	ErrNotFound = errors.New("not found on chain")

	// ErrReverted means the transaction was mined and failed.
	ErrReverted = errors.New("transaction reverted")
)

// TransferEvent is one ERC-20 Transfer log addressed to a watched wallet.
type TransferEvent struct {
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	From        string
	To          string
	Amount      *big.Int
}

// Receipt is the mined outcome of a transaction.
type Receipt struct {
	BlockNumber uint64
	Reverted    bool
}

// Client is the per-chain RPC surface the workers need. Every call is a
// blocking I/O boundary that may stall for seconds; worker cadence is
// designed around that.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)

	// FilterTransfers returns ERC-20 Transfer events sent to toAddr
	// within [fromBlock, toBlock].
	FilterTransfers(ctx context.Context, token, toAddr string, fromBlock, toBlock uint64) ([]TransferEvent, error)

	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	TokenBalance(ctx context.Context, token, address string) (*big.Int, error)

	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// EstimateTransferGas simulates the transfer against latest state;
	// a reverting transfer surfaces here before anything is broadcast.
	EstimateTransferGas(ctx context.Context, token, from, to string, amount *big.Int) (uint64, error)

	SendTransfer(ctx context.Context, key *ecdsa.PrivateKey, token, to string, amount *big.Int, gasLimit uint64) (string, error)
	SendNative(ctx context.Context, key *ecdsa.PrivateKey, to string, amount *big.Int) (string, error)

	// GetReceipt returns ErrNotFound while the transaction is unmined.
	GetReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// TransactionExists reports whether the node still knows the
	// transaction at all; false means it was dropped from the mempool.
	TransactionExists(ctx context.Context, txHash string) (bool, error)
}

// IsTransient reports whether an RPC error is worth retrying on the next
// worker cycle: nonce races, underpriced replacements, timeouts and
// plain connectivity noise.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"nonce",
		"underpriced",
		"replacement",
		"timeout",
		"deadline exceeded",
		"temporarily",
		"connection refused",
		"connection reset",
		"eof",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
