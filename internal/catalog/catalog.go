// Package catalog serves listings from the cache, falling back to the
// document store.
package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

const DefaultCacheTTL = time.Minute

type Repository interface {
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	CreateListing(ctx context.Context, l domain.Listing) error
	// UpdateRates returns domain.ErrNotFound unless ownerID owns the listing.
	UpdateRates(ctx context.Context, id, ownerID string, rates domain.RateSheet) error
}

type Cache interface {
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	SetListing(ctx context.Context, l domain.Listing, ttl time.Duration) error
	InvalidateListing(ctx context.Context, id string) error
}

type Catalog struct {
	repo   Repository
	cache  Cache
	ttl    time.Duration
	logger observability.Logger
}

func New(repo Repository, cache Cache, ttl time.Duration, logger observability.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Catalog{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Listing returns domain.ErrNotFound for unknown ids. Cache failures are
// logged and bypassed.
func (c *Catalog) Listing(ctx context.Context, id string) (domain.Listing, error) {
	if c.cache != nil {
		l, err := c.cache.GetListing(ctx, id)
		if err == nil {
			return *l, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WithError(err).WithField("listing_id", id).Warn("listing cache read failed")
		}
	}

	l, err := c.repo.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if c.cache != nil {
		if err := c.cache.SetListing(ctx, *l, c.ttl); err != nil {
			c.logger.WithError(err).WithField("listing_id", id).Warn("listing cache write failed")
		}
	}
	return *l, nil
}

func (c *Catalog) Create(ctx context.Context, l domain.Listing) error {
	if l.ID == "" {
		return errors.Wrap(domain.ErrInvalidInput, "listing id is required")
	}
	if l.OwnerID == "" {
		return errors.Wrap(domain.ErrInvalidInput, "listing owner is required")
	}
	if l.Capacity < 0 {
		return errors.Wrap(domain.ErrInvalidInput, "capacity must not be negative")
	}
	return c.repo.CreateListing(ctx, l)
}

// UpdateRates replaces the rate sheet of a listing owned by ownerID.
func (c *Catalog) UpdateRates(ctx context.Context, id, ownerID string, rates domain.RateSheet) error {
	if ownerID == "" {
		return domain.ErrAuthenticationRequired
	}
	if err := c.repo.UpdateRates(ctx, id, ownerID, rates); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *Catalog) invalidate(ctx context.Context, id string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InvalidateListing(ctx, id); err != nil {
		c.logger.WithError(err).WithField("listing_id", id).Warn("listing cache invalidation failed")
	}
}
