package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

// ListingRepository stores listings and their rate sheets in the listings
// collection.
type ListingRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewListingRepository(db *mongo.Database, logger observability.Logger) *ListingRepository {
	return &ListingRepository{
		coll:   db.Collection("listings"),
		logger: logger,
	}
}

type listingDoc struct {
	domain.Listing `bson:",inline"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (c *ListingRepository) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	var doc listingDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get listing", err)
		return nil, err
	}
	return &doc.Listing, nil
}

func (c *ListingRepository) CreateListing(ctx context.Context, l domain.Listing) error {
	if err := l.Rates.Validate(); err != nil {
		return err
	}
	now := time.Now()
	_, err := c.coll.InsertOne(ctx, listingDoc{Listing: l, CreatedAt: now, UpdatedAt: now})
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConflict
	}
	if err != nil {
		c.logger.Error("failed to create listing", err)
		return err
	}
	return nil
}

func (c *ListingRepository) UpdateRates(ctx context.Context, id, ownerID string, rates domain.RateSheet) error {
	if err := rates.Validate(); err != nil {
		return err
	}
	res, err := c.coll.UpdateOne(
		ctx,
		bson.M{"_id": id, "owner_id": ownerID},
		bson.M{"$set": bson.M{"rates": rates, "updated_at": time.Now()}},
	)
	if err != nil {
		c.logger.Error("failed to update listing rates", err)
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
