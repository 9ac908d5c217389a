package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	StatusHeld      ReservationStatus = "held"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusExpired   ReservationStatus = "expired"
	StatusCompleted ReservationStatus = "completed"
)

var transitions = map[ReservationStatus][]ReservationStatus{
	StatusHeld:      {StatusConfirmed, StatusCancelled, StatusExpired},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition checks that r may move to status to at now. A lapsed hold cannot
// be confirmed since its interval may already be reserved by someone else.
func (r Reservation) Transition(to ReservationStatus, now time.Time) error {
	if !r.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	if r.Status == StatusHeld && to == StatusConfirmed && !r.Blocks(now) {
		return ErrHoldExpired
	}
	return nil
}

// Blocks reports whether a reservation in this state occupies its interval at now.
// A hold stops blocking once it has expired, even before the expiry worker runs.
func (r Reservation) Blocks(now time.Time) bool {
	switch r.Status {
	case StatusConfirmed:
		return true
	case StatusHeld:
		return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
	}
	return false
}

func NewReservation(listingID, userID string, interval Interval, guests int, quote *Quote, now time.Time, ttl time.Duration) Reservation {
	return Reservation{
		ID:        uuid.New(),
		ListingID: listingID,
		UserID:    userID,
		Interval:  interval,
		Status:    StatusHeld,
		Guests:    guests,
		Quote:     quote,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}
