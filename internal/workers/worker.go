// Package workers contains the chain-facing background loops: the
// watcher drives deposits through their state machine, the sender
// broadcasts withdrawals, and the sweeper consolidates settled deposits
// into the treasury wallets. Every loop claims rows through the shared
// lease columns, so any number of instances can run against the same
// database.
package workers

import (
	"context"
	"time"

	"veyra/internal/chain"

	"github.com/google/uuid"
)

const (
	// leaseTimeout bounds how long a crashed worker can hold a row.
	leaseTimeout = 5 * time.Minute

	// confirmationBlocks before a mined transaction is trusted.
	confirmationBlocks = 4

	watcherBatchSize = 20
	senderBatchSize  = 5

	// maxBlockRange caps a single deposit log scan.
	maxBlockRange = 500

	// maxDepositWait is how long an open deposit intent is watched
	// before it is failed.
	maxDepositWait = 12 * time.Hour

	sendRetries    = 3
	sendRetryDelay = 2 * time.Second
)

// newWorkerID builds a stable per-instance identity for the lease
// columns. The uuid suffix keeps two instances started in the same
// instant distinguishable.
func newWorkerID(name string) string {
	return name + "-" + uuid.NewString()
}

// retryTx runs a chain write, retrying transient RPC failures (nonce
// races, underpriced replacements, timeouts) a bounded number of times.
func retryTx(ctx context.Context, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < sendRetries; attempt++ {
		hash, err := fn()
		if err == nil {
			return hash, nil
		}
		lastErr = err
		if !chain.IsTransient(err) || attempt == sendRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sendRetryDelay):
		}
	}
	return "", lastErr
}
