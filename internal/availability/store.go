package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

// Store is the authoritative reservation store.
//
// Reserve must re-check for overlap and insert in a single atomic step and
// return domain.ErrConflict when a blocking reservation overlaps.
type Store interface {
	HasOverlap(ctx context.Context, listingID string, iv domain.Interval, now time.Time) (bool, error)
	Reserve(ctx context.Context, res domain.Reservation) error
}

// Repository adds the reservation lifecycle operations used outside the
// commit path.
type Repository interface {
	Store
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to domain.ReservationStatus, now time.Time) (*domain.Reservation, error)
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}
