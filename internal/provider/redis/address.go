// Package redis decorates address enrichment with a shared Redis cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	"github.com/virtualmercado/shopdrive-sub002/pkg/database"
)

const keyPrefix = "checkout:address:"

// cachedHint is the stored value. Found=false records a known miss.
type cachedHint struct {
	Found bool               `json:"found"`
	Hint  domain.AddressHint `json:"hint,omitempty"`
}

// AddressCache implements provider.AddressLookup on top of another lookup.
// Concurrent misses for the same postal code share one upstream call, and
// results are kept for every session of every replica.
type AddressCache struct {
	next        provider.AddressLookup
	client      redis.UniversalClient
	ttl         time.Duration
	notFoundTTL time.Duration
	logger      *slog.Logger
	sfg         singleflight.Group
}

// NewAddressCache wraps next with a Redis cache. Unknown postal codes are
// remembered for notFoundTTL; zero disables negative caching.
func NewAddressCache(next provider.AddressLookup, client redis.UniversalClient, ttl, notFoundTTL time.Duration, logger *slog.Logger) *AddressCache {
	return &AddressCache{
		next:        next,
		client:      client,
		ttl:         ttl,
		notFoundTTL: notFoundTTL,
		logger:      logger,
	}
}

// Lookup returns the cached hint or asks the wrapped lookup. Cache failures
// are logged and bypassed.
func (c *AddressCache) Lookup(ctx context.Context, postalCode string) (domain.AddressHint, error) {
	v, err, _ := c.sfg.Do(postalCode, func() (any, error) {
		cached, err := c.get(ctx, postalCode)
		switch {
		case err == nil:
			return cached, nil
		case !errors.Is(err, redis.Nil):
			c.logger.WarnContext(ctx, "address cache read failed",
				slog.String("postal_code", postalCode),
				slog.String("error", err.Error()),
			)
		}

		hint, err := c.next.Lookup(ctx, postalCode)
		switch {
		case errors.Is(err, provider.ErrAddressNotFound):
			if c.notFoundTTL > 0 {
				c.set(ctx, postalCode, cachedHint{}, c.notFoundTTL)
			}
			return cachedHint{}, nil
		case err != nil:
			return nil, err
		}

		entry := cachedHint{Found: true, Hint: hint}
		c.set(ctx, postalCode, entry, c.ttl)
		return entry, nil
	})
	if err != nil {
		return domain.AddressHint{}, err
	}

	entry := v.(cachedHint)
	if !entry.Found {
		return domain.AddressHint{}, provider.ErrAddressNotFound
	}
	return entry.Hint, nil
}

// Invalidate drops the cached entry for postalCode.
func (c *AddressCache) Invalidate(ctx context.Context, postalCode string) (err error) {
	key := keyPrefix + postalCode
	ctx, end := database.TraceCommand(ctx, "DEL", key)
	defer func() { end(err) }()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del address: %w", err)
	}
	return nil
}

func (c *AddressCache) get(ctx context.Context, postalCode string) (cachedHint, error) {
	key := keyPrefix + postalCode
	ctx, end := database.TraceCommand(ctx, "GET", key)
	data, err := c.client.Get(ctx, key).Bytes()
	end(err)
	if err != nil {
		return cachedHint{}, err
	}

	var entry cachedHint
	if err := json.Unmarshal(data, &entry); err != nil {
		return cachedHint{}, fmt.Errorf("unmarshal address: %w", err)
	}
	return entry, nil
}

func (c *AddressCache) set(ctx context.Context, postalCode string, entry cachedHint, ttl time.Duration) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := keyPrefix + postalCode
	ctx, end := database.TraceCommand(ctx, "SET", key)
	err = c.client.Set(ctx, key, data, ttl).Err()
	end(err)
	if err != nil {
		c.logger.WarnContext(ctx, "address cache write failed",
			slog.String("postal_code", postalCode),
			slog.String("error", err.Error()),
		)
	}
}
