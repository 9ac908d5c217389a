// Package handoff carries a booking intent across a login redirect.
//
// The intent itself stays on the server; the client only holds a signed,
// short-lived token naming it. Claiming a token consumes the intent.
package handoff

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/timecalc"
)

const DefaultTTL = 30 * time.Minute

var ErrMissingSecret = errors.New("intent signing secret is required")

// Store keeps stashed intents. Take must return and delete atomically and
// report domain.ErrNotFound when nothing is stored under id.
type Store interface {
	Put(ctx context.Context, intent domain.BookingIntent, ttl time.Duration) error
	Take(ctx context.Context, id uuid.UUID) (domain.BookingIntent, error)
}

type Claims struct {
	ListingID string `json:"lid"`
	jwt.RegisteredClaims
}

type Service struct {
	store  Store
	secret []byte
	ttl    time.Duration
	clock  domain.Clock
}

func NewService(store Store, secret []byte, ttl time.Duration, clock domain.Clock) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Service{store: store, secret: secret, ttl: ttl, clock: clock}, nil
}

// Stash stores the intent under a fresh id and returns the token to pass
// through the redirect. Any id set by the caller is replaced.
func (s *Service) Stash(ctx context.Context, intent domain.BookingIntent) (string, time.Time, error) {
	if intent.ListingID == "" {
		return "", time.Time{}, errors.Wrap(domain.ErrInvalidInput, "intent has no listing")
	}
	now := s.clock.Now()
	intent.ID = uuid.New()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	if err := s.store.Put(ctx, intent, s.ttl); err != nil {
		return "", time.Time{}, errors.Mark(errors.Wrap(err, "stash intent"), domain.ErrUpstreamUnavailable)
	}

	expiresAt := now.Add(s.ttl)
	claims := Claims{
		ListingID: intent.ListingID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        intent.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign intent token")
	}
	return token, expiresAt, nil
}

// Claim verifies the token and consumes the intent. When listingID is set the
// token must have been issued for that listing.
func (s *Service) Claim(ctx context.Context, token, listingID string) (domain.BookingIntent, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return domain.BookingIntent{}, errors.Mark(errors.Wrap(err, "parse intent token"), domain.ErrInvalidInput)
	}

	now := s.clock.Now()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.BookingIntent{}, domain.ErrIntentExpired
	}
	if listingID != "" && claims.ListingID != listingID {
		return domain.BookingIntent{}, domain.ErrIntentMismatch
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return domain.BookingIntent{}, errors.Wrap(domain.ErrInvalidInput, "intent token has no id")
	}

	intent, err := s.store.Take(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.BookingIntent{}, domain.ErrIntentConsumed
	}
	if err != nil {
		return domain.BookingIntent{}, errors.Mark(errors.Wrap(err, "claim intent"), domain.ErrUpstreamUnavailable)
	}
	if intent.ListingID != claims.ListingID {
		return domain.BookingIntent{}, domain.ErrIntentMismatch
	}
	if windowPassed(intent.Window, now) {
		return domain.BookingIntent{}, domain.ErrIntentExpired
	}
	return intent, nil
}

func windowPassed(w domain.BookingWindow, now time.Time) bool {
	start, err := timecalc.ParseDate(w.StartDate)
	if err != nil {
		return true
	}
	y, m, d := now.UTC().Date()
	return start.Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
