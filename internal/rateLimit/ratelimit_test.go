package rateLimit

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db)
	ctx := context.Background()

	mock.ExpectIncr("rl:check:1.2.3.4").SetVal(1)
	mock.ExpectExpireNX("rl:check:1.2.3.4", time.Minute).SetVal(true)
	assert.True(t, rl.Allow(ctx, "check:1.2.3.4", 2, time.Minute))

	mock.ExpectIncr("rl:check:1.2.3.4").SetVal(3)
	mock.ExpectExpireNX("rl:check:1.2.3.4", time.Minute).SetVal(false)
	assert.False(t, rl.Allow(ctx, "check:1.2.3.4", 2, time.Minute))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_AllowsWhenRedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db)

	mock.ExpectIncr("rl:k").SetErr(errors.New("dial tcp: connection refused"))
	assert.True(t, rl.Allow(context.Background(), "k", 1, time.Second))
}
