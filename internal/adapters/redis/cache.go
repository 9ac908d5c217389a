package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

const listingPrefix = "listing:"

// Cache keeps read-mostly listing documents close to the API.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// GetListing returns domain.ErrNotFound on a cache miss.
func (c *Cache) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	val, err := c.client.Get(ctx, listingPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var l domain.Listing
	if err := json.Unmarshal(val, &l); err != nil {
		return nil, errors.Wrap(err, "decode cached listing")
	}
	return &l, nil
}

func (c *Cache) SetListing(ctx context.Context, l domain.Listing, ttl time.Duration) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, listingPrefix+l.ID, data, ttl).Err()
}

func (c *Cache) InvalidateListing(ctx context.Context, id string) error {
	return c.client.Del(ctx, listingPrefix+id).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
