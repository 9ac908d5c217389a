package crdb_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/coworking-booking-engine/internal/adapters/crdb"
	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

func startCockroach(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("container test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "26257")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgresql://root@%s:%s/defaultdb?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func hold(listingID string, start time.Time, hours int, now time.Time) domain.Reservation {
	iv := domain.Interval{Start: start, End: start.Add(time.Duration(hours) * time.Hour)}
	return domain.NewReservation(listingID, "user-1", iv, 1, &domain.Quote{Total: 100, Currency: "USD"}, now, 15*time.Minute)
}

func TestRepository_ReserveConflict(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(24 * time.Hour)

	first := hold("desk-1", start, 2, now)
	require.NoError(t, repo.Reserve(ctx, first))

	err := repo.Reserve(ctx, hold("desk-1", start.Add(time.Hour), 2, now))
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)

	// Back-to-back intervals do not overlap.
	require.NoError(t, repo.Reserve(ctx, hold("desk-1", start.Add(2*time.Hour), 1, now)))
	// Other listings are independent.
	require.NoError(t, repo.Reserve(ctx, hold("desk-2", start, 2, now)))

	taken, err := repo.HasOverlap(ctx, "desk-1", first.Interval, now)
	require.NoError(t, err)
	assert.True(t, taken)

	got, err := repo.GetReservation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHeld, got.Status)
	require.NotNil(t, got.Quote)
	assert.Equal(t, 100.0, got.Quote.Total)

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRepository_ExpiredHoldStopsBlocking(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(48 * time.Hour)

	stale := hold("room-9", start, 3, now.Add(-time.Hour))
	require.NoError(t, repo.Reserve(ctx, stale))

	taken, err := repo.HasOverlap(ctx, "room-9", stale.Interval, now)
	require.NoError(t, err)
	assert.False(t, taken)

	expired, err := repo.ExpiredHolds(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	require.NoError(t, repo.Reserve(ctx, hold("room-9", start, 3, now)))
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	res := hold("desk-3", now.Add(time.Hour), 1, now)
	require.NoError(t, repo.Reserve(ctx, res))

	updated, err := repo.UpdateStatus(ctx, res.ID, domain.StatusConfirmed, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, updated.Status)

	_, err = repo.UpdateStatus(ctx, res.ID, domain.StatusExpired, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = repo.UpdateStatus(ctx, uuid.New(), domain.StatusCancelled, now)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRepository_LapsedHoldCannotBeConfirmed(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(96 * time.Hour)

	lapsed := hold("desk-4", start, 3, now.Add(-time.Hour))
	require.NoError(t, repo.Reserve(ctx, lapsed))
	newer := hold("desk-4", start.Add(time.Hour), 1, now)
	require.NoError(t, repo.Reserve(ctx, newer))
	_, err := repo.UpdateStatus(ctx, newer.ID, domain.StatusConfirmed, now)
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, lapsed.ID, domain.StatusConfirmed, now)
	assert.True(t, errors.Is(err, domain.ErrHoldExpired), "got %v", err)

	got, err := repo.GetReservation(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHeld, got.Status)
}

func TestRepository_OutboxLeaseIsExclusive(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(120 * time.Hour)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Reserve(ctx, hold(fmt.Sprintf("lease-%d", i), start, 1, now)))
	}

	first, err := repo.GetUnpublishedOutbox(ctx, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	second, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, second, 1)
	for _, rec := range first {
		assert.NotEqual(t, rec.ID, second[0].ID)
	}

	// Leased rows stay hidden until published or the lease runs out.
	require.NoError(t, repo.MarkPublished(ctx, second[0].ID, now))
	rest, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestRepository_ConcurrentReserveSingleWinner(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(72 * time.Hour)

	const contenders = 6
	results := make([]error, contenders)
	var g errgroup.Group
	for i := 0; i < contenders; i++ {
		i := i
		g.Go(func() error {
			results[i] = repo.Reserve(ctx, hold("hot-desk", start, 4, now))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSerializationFailure):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}
