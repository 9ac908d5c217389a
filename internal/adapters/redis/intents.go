package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

const intentPrefix = "intent:"

// IntentStore keeps stashed booking intents until they are claimed or expire.
type IntentStore struct {
	client *redis.Client
}

func NewIntentStore(client *redis.Client) *IntentStore {
	return &IntentStore{client: client}
}

func (s *IntentStore) Put(ctx context.Context, intent domain.BookingIntent, ttl time.Duration) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, intentPrefix+intent.ID.String(), data, ttl).Err()
}

// Take reads and deletes the intent in one round trip so it can be claimed once.
func (s *IntentStore) Take(ctx context.Context, id uuid.UUID) (domain.BookingIntent, error) {
	val, err := s.client.GetDel(ctx, intentPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BookingIntent{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BookingIntent{}, err
	}
	var intent domain.BookingIntent
	if err := json.Unmarshal(val, &intent); err != nil {
		return domain.BookingIntent{}, errors.Wrap(err, "decode intent")
	}
	return intent, nil
}
