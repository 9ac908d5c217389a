package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	redisadapter "github.com/robertarktes/coworking-booking-engine/internal/adapters/redis"
)

const (
	DefaultTTL     = 24 * time.Hour
	DefaultLockTTL = 30 * time.Second
)

// ErrInFlight is returned when another request with the same key is still
// being processed.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

type Backend interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	redis Backend
	ttl   time.Duration
}

func NewIdempotency(redis Backend, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

// Begin returns the stored response for key when there is one. Otherwise it
// claims the key and returns nil; the caller must then call Finish or Abort.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if resp, err := i.Get(ctx, key); err != nil || resp != nil {
		return resp, err
	}
	ok, err := i.redis.Lock(ctx, key, DefaultLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return nil, nil
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.redis.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, Result: stored.Result}, nil
}

// Finish stores resp under key and releases the claim.
func (i *Idempotency) Finish(ctx context.Context, key string, resp Response) error {
	if err := i.redis.Set(ctx, key, redisadapter.IdempResponse{Status: resp.Status, Result: resp.Result}, i.ttl); err != nil {
		return err
	}
	return i.redis.Unlock(ctx, key)
}

// Abort releases the claim without storing anything so the request can be retried.
func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.redis.Unlock(ctx, key)
}
