package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	ExclusionViolationCode   = "23P01"

	maxTxAttempts = 3
)

// blockingPredicate selects reservations that occupy their interval at $now.
const blockingPredicate = `(status = 'confirmed' OR (status = 'held' AND (expires_at IS NULL OR expires_at > $4)))`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a SERIALIZABLE transaction, retrying serialization
// failures a bounded number of times.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			observability.DBTxRetries.Inc()
		}
		err = r.runTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
	}
	return err
}

func (r *Repository) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}
	return mapPgError(tx.Commit(ctx))
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode:
			return domain.ErrSerializationFailure
		case ExclusionViolationCode:
			return domain.ErrConflict
		}
	}
	return err
}

func (r *Repository) HasOverlap(ctx context.Context, listingID string, iv domain.Interval, now time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE listing_id = $1 AND starts_at < $3 AND $2 < ends_at AND `+blockingPredicate+`
		)
	`, listingID, iv.Start, iv.End, now).Scan(&exists)
	return exists, err
}

// Reserve locks the listing row, re-checks overlap and inserts the hold plus
// its outbox event in one transaction.
func (r *Repository) Reserve(ctx context.Context, res domain.Reservation) error {
	quoteJSON, err := json.Marshal(res.Quote)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(reservationEvent(res))
	if err != nil {
		return err
	}

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO listing_locks (listing_id) VALUES ($1)
			ON CONFLICT (listing_id) DO UPDATE SET touched_at = now()
		`, res.ListingID)
		if err != nil {
			return err
		}

		var taken bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM reservations
				WHERE listing_id = $1 AND starts_at < $3 AND $2 < ends_at AND `+blockingPredicate+`
			)
		`, res.ListingID, res.Interval.Start, res.Interval.End, res.CreatedAt).Scan(&taken)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrConflict
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reservations (id, listing_id, user_id, starts_at, ends_at, status, guests, quote_json, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, res.ID, res.ListingID, res.UserID, res.Interval.Start, res.Interval.End, res.Status, res.Guests, quoteJSON, res.ExpiresAt, res.CreatedAt)
		if err != nil {
			return err
		}

		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "reservation",
			AggregateID:   res.ID,
			EventType:     "reservation." + string(res.Status),
			Payload:       payload,
			DedupeKey:     res.ID.String() + ":" + string(res.Status),
		})
	})
}

const reservationColumns = `id, listing_id, user_id, starts_at, ends_at, status, guests, quote_json, expires_at, created_at`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		res       domain.Reservation
		status    string
		quoteJSON []byte
		expiresAt *time.Time
	)
	err := row.Scan(&res.ID, &res.ListingID, &res.UserID, &res.Interval.Start, &res.Interval.End, &status, &res.Guests, &quoteJSON, &expiresAt, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	res.Status = domain.ReservationStatus(status)
	if expiresAt != nil {
		res.ExpiresAt = *expiresAt
	}
	if len(quoteJSON) > 0 && string(quoteJSON) != "null" {
		var q domain.Quote
		if err := json.Unmarshal(quoteJSON, &q); err != nil {
			return nil, err
		}
		res.Quote = &q
	}
	return &res, nil
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return res, err
}

// UpdateStatus applies a lifecycle transition as of now and records the
// matching outbox event in the same transaction.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.ReservationStatus, now time.Time) (*domain.Reservation, error) {
	var updated *domain.Reservation
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		res, err := scanReservation(tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := res.Transition(to, now); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE reservations SET status = $2 WHERE id = $1`, id, to); err != nil {
			return err
		}
		res.Status = to

		payload, err := json.Marshal(reservationEvent(*res))
		if err != nil {
			return err
		}
		updated = res
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "reservation",
			AggregateID:   res.ID,
			EventType:     "reservation." + string(to),
			Payload:       payload,
			DedupeKey:     res.ID.String() + ":" + string(to),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repository) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE status = 'held' AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

type ReservationEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ListingID     string    `json:"listing_id"`
	UserID        string    `json:"user_id,omitempty"`
	Status        string    `json:"status"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Total         float64   `json:"total,omitempty"`
	Currency      string    `json:"currency,omitempty"`
}

func reservationEvent(res domain.Reservation) ReservationEvent {
	ev := ReservationEvent{
		ReservationID: res.ID,
		ListingID:     res.ListingID,
		UserID:        res.UserID,
		Status:        string(res.Status),
		StartsAt:      res.Interval.Start,
		EndsAt:        res.Interval.End,
	}
	if res.Quote != nil {
		ev.Total = res.Quote.Total
		ev.Currency = res.Quote.Currency
	}
	return ev
}
