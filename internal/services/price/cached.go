package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veyra/internal/repositories"

	"github.com/sirupsen/logrus"
)

// CachedOracle layers a short Redis TTL over another Oracle so that one
// worker sweep or one burst of API traffic hits CoinGecko at most once
// per asset. A cache failure falls through to the source.
type CachedOracle struct {
	source Oracle
	cache  repositories.CacheRepository
	ttl    time.Duration
}

// NewCachedOracle wraps source with a Redis cache.
func NewCachedOracle(source Oracle, cache repositories.CacheRepository, ttl time.Duration) *CachedOracle {
	return &CachedOracle{source: source, cache: cache, ttl: ttl}
}

func (o *CachedOracle) PriceUSD(ctx context.Context, coinID string) (string, error) {
	key := "price:usd:" + coinID

	cached, err := o.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, repositories.ErrCacheMiss) {
		logrus.WithError(err).WithField("coin", coinID).Warn("price cache read failed")
	}

	fresh, err := o.source.PriceUSD(ctx, coinID)
	if err != nil {
		return "", fmt.Errorf("price lookup for %s: %w", coinID, err)
	}
	if err := o.cache.Set(ctx, key, fresh, o.ttl); err != nil {
		logrus.WithError(err).WithField("coin", coinID).Warn("price cache write failed")
	}
	return fresh, nil
}
