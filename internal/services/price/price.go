// Package price resolves USD prices for tradable assets. The investment
// engine strikes conversions at the oracle price, so every credited
// quantity traces back to one PriceUSD call.
package price

import (
	"context"
	"errors"
)

// ErrUnknownAsset is returned for symbols the oracle has no listing for.
var ErrUnknownAsset = errors.New("unknown asset")

// Oracle returns the current USD price for a CoinGecko asset ID as a
// decimal string ("67123.45"). String-typed on purpose: callers convert
// straight into fixed-point wei without ever touching a float.
type Oracle interface {
	PriceUSD(ctx context.Context, coinID string) (string, error)
}

// coinIDs maps index symbols to CoinGecko asset IDs. Adding an index
// asset means adding a row here and enabling it in INDEX_ASSETS.
var coinIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

// CoinID resolves an index symbol to its CoinGecko asset ID.
func CoinID(symbol string) (string, error) {
	id, ok := coinIDs[symbol]
	if !ok {
		return "", ErrUnknownAsset
	}
	return id, nil
}
