// Package rates quotes market rates out of Redis. Rates are pushed by an
// upstream feed (or the admin API) and read by quoting and by flex
// requisite realization.
package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/cache"
)

const keyPrefix = "exchange:rate:"

// RedisSource implements domain.RateSource over the shared Redis cache.
type RedisSource struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

func NewRedisSource(c *cache.RedisCache, ttl time.Duration) *RedisSource {
	return &RedisSource{cache: c, ttl: ttl}
}

func (s *RedisSource) Rate(ctx context.Context, currencyID string) (decimal.Decimal, error) {
	raw, err := s.cache.Get(ctx, keyPrefix+currencyID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read rate %s: %w", currencyID, err)
	}
	if raw == "" {
		return decimal.Zero, domain.ErrRateUnavailable
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %s: %w", currencyID, err)
	}
	if rate.Sign() <= 0 {
		return decimal.Zero, domain.ErrZeroRate
	}
	return rate, nil
}

// SetRate publishes a rate. Zero ttl keeps the rate until overwritten.
func (s *RedisSource) SetRate(ctx context.Context, currencyID string, rate decimal.Decimal) error {
	if rate.Sign() <= 0 {
		return domain.ErrZeroRate
	}
	return s.cache.Set(ctx, keyPrefix+currencyID, rate.String(), s.ttl)
}
