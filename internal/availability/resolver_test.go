package availability

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var epoch = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func hours(from, to int) domain.Interval {
	return domain.Interval{Start: epoch.Add(time.Duration(from) * time.Hour), End: epoch.Add(time.Duration(to) * time.Hour)}
}

func newResolver(store Store) *Resolver {
	return NewResolver(store, observability.NewLoggerWithOutput(io.Discard), Options{
		CheckTimeout:  50 * time.Millisecond,
		CommitTimeout: 50 * time.Millisecond,
		HoldTTL:       time.Hour,
		Clock:         fixedClock{epoch},
	})
}

type brokenStore struct{ err error }

func (b brokenStore) HasOverlap(context.Context, string, domain.Interval, time.Time) (bool, error) {
	return false, b.err
}

func (b brokenStore) Reserve(context.Context, domain.Reservation) error { return b.err }

type slowStore struct{}

func (slowStore) HasOverlap(ctx context.Context, _ string, _ domain.Interval, _ time.Time) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (slowStore) Reserve(ctx context.Context, _ domain.Reservation) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestResolver_CheckAndCommit(t *testing.T) {
	ctx := context.Background()
	r := newResolver(NewMemoryStore())

	assert.True(t, r.Check(ctx, "desk-1", hours(9, 12)).Available)

	res, err := r.Commit(ctx, CommitRequest{ListingID: "desk-1", Interval: hours(9, 12), Guests: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHeld, res.Status)
	assert.Equal(t, epoch.Add(time.Hour), res.ExpiresAt)

	assert.False(t, r.Check(ctx, "desk-1", hours(11, 13)).Available)
	assert.True(t, r.Check(ctx, "desk-1", hours(12, 13)).Available, "half-open intervals may touch")
	assert.True(t, r.Check(ctx, "desk-2", hours(9, 12)).Available, "other listings are independent")

	_, err = r.Commit(ctx, CommitRequest{ListingID: "desk-1", Interval: hours(10, 11), Guests: 1})
	assert.True(t, errors.Is(err, domain.ErrSlotTaken))
	assert.True(t, errors.Is(err, domain.ErrAvailabilityConflict))
	assert.False(t, domain.IsRetryable(err))
}

func TestResolver_CheckFailsOpen(t *testing.T) {
	r := newResolver(brokenStore{err: errors.New("connection refused")})
	v := r.Check(context.Background(), "desk-1", hours(9, 10))
	assert.True(t, v.Available)
	assert.True(t, v.Degraded)

	v = newResolver(slowStore{}).Check(context.Background(), "desk-1", hours(9, 10))
	assert.True(t, v.Available, "timeout counts as fail open")
}

func TestResolver_CallerCancelledCheckIsNotFailOpen(t *testing.T) {
	var logs bytes.Buffer
	r := NewResolver(slowStore{}, observability.NewLoggerWithOutput(&logs), Options{
		CheckTimeout: time.Second,
		Clock:        fixedClock{epoch},
	})
	failOpen := testutil.ToFloat64(observability.AvailabilityChecks.WithLabelValues("fail_open"))
	cancelled := testutil.ToFloat64(observability.AvailabilityChecks.WithLabelValues("cancelled"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	r.Check(ctx, "desk-1", hours(9, 10))

	assert.Equal(t, failOpen, testutil.ToFloat64(observability.AvailabilityChecks.WithLabelValues("fail_open")))
	assert.Equal(t, cancelled+1, testutil.ToFloat64(observability.AvailabilityChecks.WithLabelValues("cancelled")))
	assert.NotContains(t, logs.String(), "reporting available")
}

func TestResolver_CommitFailsClosed(t *testing.T) {
	_, err := newResolver(brokenStore{err: errors.New("connection refused")}).
		Commit(context.Background(), CommitRequest{ListingID: "desk-1", Interval: hours(9, 10), Guests: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
	assert.True(t, domain.IsRetryable(err))

	_, err = newResolver(slowStore{}).Commit(context.Background(), CommitRequest{ListingID: "desk-1", Interval: hours(9, 10), Guests: 1})
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
}

func TestResolver_CommitIgnoresCallerCancellation(t *testing.T) {
	r := newResolver(NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Commit(ctx, CommitRequest{ListingID: "desk-1", Interval: hours(9, 10), Guests: 1})
	require.NoError(t, err)
}

func TestResolver_CommitRejectsEmptyInterval(t *testing.T) {
	_, err := newResolver(NewMemoryStore()).Commit(context.Background(), CommitRequest{ListingID: "desk-1", Interval: hours(9, 9)})
	assert.True(t, errors.Is(err, domain.ErrInvalidWindow))
}

func TestResolver_ConcurrentOverlappingCommits(t *testing.T) {
	for round := 0; round < 50; round++ {
		r := newResolver(NewMemoryStore())
		var won, lost atomic.Int32
		var g errgroup.Group
		for i := 0; i < 8; i++ {
			i := i
			g.Go(func() error {
				_, err := r.Commit(context.Background(), CommitRequest{ListingID: "room-a", Interval: hours(9+i%2, 12), Guests: 1})
				switch {
				case err == nil:
					won.Add(1)
				case errors.Is(err, domain.ErrSlotTaken):
					lost.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		require.Equal(t, int32(1), won.Load(), "round %d", round)
		require.Equal(t, int32(7), lost.Load())
	}
}

func TestResolver_CheckAvailability(t *testing.T) {
	store := NewMemoryStore()
	r := newResolver(store)
	listing := domain.Listing{ID: "desk-1", TimeZone: "UTC"}
	w := domain.BookingWindow{StartDate: "2025-09-01", EndDate: "2025-09-01", CheckInTime: "09:00", CheckOutTime: "12:00", Guests: 1}

	ok, err := r.CheckAvailability(context.Background(), listing, w)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.Commit(context.Background(), CommitRequest{ListingID: "desk-1", Interval: hours(10, 11)})
	require.NoError(t, err)

	ok, err = r.CheckAvailability(context.Background(), listing, w)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.CheckAvailability(context.Background(), listing, domain.BookingWindow{StartDate: "tomorrow"})
	assert.True(t, errors.Is(err, domain.ErrInvalidWindow))
}
