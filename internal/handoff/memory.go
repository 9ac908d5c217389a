package handoff

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

type memoryEntry struct {
	intent    domain.BookingIntent
	expiresAt time.Time
}

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]memoryEntry
	clock   domain.Clock
}

func NewMemoryStore(clock domain.Clock) *MemoryStore {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &MemoryStore{entries: make(map[uuid.UUID]memoryEntry), clock: clock}
}

func (m *MemoryStore) Put(_ context.Context, intent domain.BookingIntent, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[intent.ID] = memoryEntry{intent: intent, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Take(_ context.Context, id uuid.UUID) (domain.BookingIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.BookingIntent{}, domain.ErrNotFound
	}
	delete(m.entries, id)
	if !m.clock.Now().Before(e.expiresAt) {
		return domain.BookingIntent{}, domain.ErrNotFound
	}
	return e.intent, nil
}
