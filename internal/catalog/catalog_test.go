package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/robertarktes/coworking-booking-engine/internal/adapters/redis"
	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

var desk = domain.Listing{
	ID:       "desk-1",
	OwnerID:  "host-1",
	Title:    "Window desk",
	Capacity: 1,
	Rates:    domain.RateSheet{PriceSeatDay: domain.Rate(25), Currency: "EUR"},
}

func TestCatalog_MissFillsCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(NewMemoryRepository(desk), redisadapter.NewCache(db), time.Minute, observability.NewLoggerWithOutput(&bytes.Buffer{}))
	data, err := json.Marshal(desk)
	require.NoError(t, err)

	mock.ExpectGet("listing:desk-1").RedisNil()
	mock.ExpectSet("listing:desk-1", data, time.Minute).SetVal("OK")
	got, err := c.Listing(context.Background(), "desk-1")
	require.NoError(t, err)
	assert.Equal(t, desk, got)

	mock.ExpectGet("listing:desk-1").SetVal(string(data))
	got, err = c.Listing(context.Background(), "desk-1")
	require.NoError(t, err)
	assert.Equal(t, desk, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_CacheDownFallsBack(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(NewMemoryRepository(desk), redisadapter.NewCache(db), time.Minute, observability.NewLoggerWithOutput(&bytes.Buffer{}))

	data, err := json.Marshal(desk)
	require.NoError(t, err)

	mock.ExpectGet("listing:desk-1").SetErr(errors.New("i/o timeout"))
	mock.ExpectSet("listing:desk-1", data, time.Minute).SetErr(errors.New("i/o timeout"))
	got, err := c.Listing(context.Background(), "desk-1")
	require.NoError(t, err)
	assert.Equal(t, "desk-1", got.ID)
}

func TestCatalog_UnknownListing(t *testing.T) {
	c := New(NewMemoryRepository(), nil, 0, observability.NewLoggerWithOutput(&bytes.Buffer{}))
	_, err := c.Listing(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCatalog_UpdateRatesInvalidates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewMemoryRepository(desk)
	c := New(repo, redisadapter.NewCache(db), time.Minute, observability.NewLoggerWithOutput(&bytes.Buffer{}))

	mock.ExpectDel("listing:desk-1").SetVal(1)
	require.NoError(t, c.UpdateRates(context.Background(), "desk-1", "host-1", domain.RateSheet{PriceSeatHour: domain.Rate(5), Currency: "EUR"}))
	assert.NoError(t, mock.ExpectationsWereMet())

	l, err := repo.GetListing(context.Background(), "desk-1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, *l.Rates.PriceSeatHour)

	err = c.UpdateRates(context.Background(), "desk-1", "host-1", domain.RateSheet{PriceSeatHour: domain.Rate(-1)})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	err = c.UpdateRates(context.Background(), "desk-1", "someone-else", domain.RateSheet{PriceSeatHour: domain.Rate(1)})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	err = c.UpdateRates(context.Background(), "desk-1", "", domain.RateSheet{PriceSeatHour: domain.Rate(1)})
	assert.True(t, errors.Is(err, domain.ErrAuthenticationRequired))

	l, err = repo.GetListing(context.Background(), "desk-1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, *l.Rates.PriceSeatHour)
}

func TestCatalog_CreateValidates(t *testing.T) {
	c := New(NewMemoryRepository(), nil, 0, observability.NewLoggerWithOutput(&bytes.Buffer{}))
	assert.True(t, errors.Is(c.Create(context.Background(), domain.Listing{}), domain.ErrInvalidInput))
	assert.True(t, errors.Is(c.Create(context.Background(), domain.Listing{ID: "orphan"}), domain.ErrInvalidInput))
	require.NoError(t, c.Create(context.Background(), desk))
	assert.True(t, errors.Is(c.Create(context.Background(), desk), domain.ErrConflict))
}
