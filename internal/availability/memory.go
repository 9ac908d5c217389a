package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

// MemoryStore keeps reservations in process. A single mutex makes Reserve's
// check-then-insert atomic.
type MemoryStore struct {
	mu        sync.Mutex
	byListing map[string][]*domain.Reservation
	byID      map[uuid.UUID]*domain.Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byListing: make(map[string][]*domain.Reservation),
		byID:      make(map[uuid.UUID]*domain.Reservation),
	}
}

func (m *MemoryStore) HasOverlap(ctx context.Context, listingID string, iv domain.Interval, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapsLocked(listingID, iv, now), nil
}

func (m *MemoryStore) overlapsLocked(listingID string, iv domain.Interval, now time.Time) bool {
	for _, existing := range m.byListing[listingID] {
		if existing.Blocks(now) && existing.Interval.Overlaps(iv) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Reserve(ctx context.Context, res domain.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overlapsLocked(res.ListingID, res.Interval, res.CreatedAt) {
		return domain.ErrConflict
	}
	stored := res
	m.byListing[res.ListingID] = append(m.byListing[res.ListingID], &stored)
	m.byID[res.ID] = &stored
	return nil
}

func (m *MemoryStore) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *res
	return &out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.ReservationStatus, now time.Time) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := res.Transition(to, now); err != nil {
		return nil, err
	}
	res.Status = to
	out := *res
	return &out, nil
}

func (m *MemoryStore) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, res := range m.byID {
		if res.Status == domain.StatusHeld && !res.ExpiresAt.IsZero() && !now.Before(res.ExpiresAt) {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
