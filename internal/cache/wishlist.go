package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/buymeagift/giftlist/internal/domain"
)

const (
	keyPrefix = "wishlist:public:"
	genPrefix = "wishlist:gen:"

	// generationTTL outlives any read-then-write window by a wide margin.
	generationTTL = 24 * time.Hour
)

// WishlistCache stores the public product list of a wishlist in Redis, in
// insertion order. Sorting is applied by readers.
type WishlistCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWishlistCache creates a Redis-backed cache. A zero ttl disables caching.
func NewWishlistCache(client *redis.Client, ttl time.Duration) *WishlistCache {
	return &WishlistCache{
		client: client,
		ttl:    ttl,
	}
}

// Enabled reports whether entries are stored at all.
func (c *WishlistCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get returns the cached products for userID. The boolean is false on a miss.
func (c *WishlistCache) Get(ctx context.Context, userID string) ([]domain.Product, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get wishlist: %w", err)
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, false, fmt.Errorf("unmarshal wishlist: %w", err)
	}

	return products, true, nil
}

// Generation returns the invalidation counter of userID. Readers take it
// before loading from the database and hand it back to Set.
func (c *WishlistCache) Generation(ctx context.Context, userID string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}

	gen, err := c.client.Get(ctx, genPrefix+userID).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get wishlist generation: %w", err)
	}
	return gen, nil
}

// Set stores products for userID with the configured TTL, but only while
// the generation still equals gen. A write racing an Invalidate is dropped
// so a snapshot read before the invalidation never lands in the cache.
func (c *WishlistCache) Set(ctx context.Context, userID string, gen int64, products []domain.Product) error {
	if !c.Enabled() {
		return nil
	}

	if products == nil {
		products = []domain.Product{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal wishlist: %w", err)
	}

	genKey := genPrefix + userID
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+userID, data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil, errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("redis set wishlist: %w", err)
	}
}

var errStale = errors.New("wishlist generation changed")

// Invalidate drops the cached entries of the given users and bumps their
// generations so in-flight readers do not write stale snapshots back.
func (c *WishlistCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if !c.Enabled() || len(userIDs) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, genPrefix+id)
			pipe.Expire(ctx, genPrefix+id, generationTTL)
			pipe.Del(ctx, keyPrefix+id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate wishlist: %w", err)
	}

	return nil
}

// Ping checks connectivity for readiness probes.
func (c *WishlistCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
