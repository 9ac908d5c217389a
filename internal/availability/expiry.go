package availability

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

const DefaultExpiryBatch = 100

// Expirer moves held reservations past their deadline to expired. Overdue
// holds already stop blocking on their own; this makes the status explicit
// and emits the reservation.expired event through the store's outbox.
type Expirer struct {
	repo   Repository
	logger observability.Logger
	clock  domain.Clock
	batch  int
}

func NewExpirer(repo Repository, logger observability.Logger, clock domain.Clock) *Expirer {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Expirer{repo: repo, logger: logger, clock: clock, batch: DefaultExpiryBatch}
}

// Sweep expires overdue holds until none remain and returns how many it expired.
func (e *Expirer) Sweep(ctx context.Context) (int, error) {
	expired := 0
	for {
		holds, err := e.repo.ExpiredHolds(ctx, e.clock.Now(), e.batch)
		if err != nil {
			return expired, errors.Wrap(err, "list expired holds")
		}
		if len(holds) == 0 {
			return expired, nil
		}
		progressed := false
		for _, h := range holds {
			_, err := e.repo.UpdateStatus(ctx, h.ID, domain.StatusExpired, e.clock.Now())
			switch {
			case err == nil:
				expired++
				progressed = true
				observability.HoldsExpired.Inc()
			case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
				// confirmed or cancelled since it was listed
				progressed = true
			default:
				e.logger.WithError(err).WithField("reservation_id", h.ID).Warn("expire hold")
			}
		}
		if !progressed || len(holds) < e.batch {
			return expired, nil
		}
	}
}
