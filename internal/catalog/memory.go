package catalog

import (
	"context"
	"sync"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

// MemoryRepository is an in-process Repository used by tests and local runs.
type MemoryRepository struct {
	mu       sync.RWMutex
	listings map[string]domain.Listing
}

func NewMemoryRepository(listings ...domain.Listing) *MemoryRepository {
	m := &MemoryRepository{listings: make(map[string]domain.Listing)}
	for _, l := range listings {
		m.listings[l.ID] = l
	}
	return m
}

func (m *MemoryRepository) GetListing(_ context.Context, id string) (*domain.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (m *MemoryRepository) CreateListing(_ context.Context, l domain.Listing) error {
	if err := l.Rates.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[l.ID]; ok {
		return domain.ErrConflict
	}
	m.listings[l.ID] = l
	return nil
}

func (m *MemoryRepository) UpdateRates(_ context.Context, id, ownerID string, rates domain.RateSheet) error {
	if err := rates.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok || l.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	l.Rates = rates
	m.listings[id] = l
	return nil
}
