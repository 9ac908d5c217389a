package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/coworking-booking-engine/internal/availability"
	"github.com/robertarktes/coworking-booking-engine/internal/booking"
	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
	"github.com/robertarktes/coworking-booking-engine/internal/pricing"
)

type Listings interface {
	Listing(ctx context.Context, id string) (domain.Listing, error)
	Create(ctx context.Context, l domain.Listing) error
	UpdateRates(ctx context.Context, id, ownerID string, rates domain.RateSheet) error
}

type Reservations interface {
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to domain.ReservationStatus, now time.Time) (*domain.Reservation, error)
}

type IntentStash interface {
	Stash(ctx context.Context, intent domain.BookingIntent) (string, time.Time, error)
	Claim(ctx context.Context, token, listingID string) (domain.BookingIntent, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type Handlers struct {
	listings     Listings
	resolver     *availability.Resolver
	checkout     *booking.Checkout
	reservations Reservations
	intents      IntentStash
	logger       observability.Logger
	readiness    map[string]Pinger
	validate     *validator.Validate
}

func NewHandlers(listings Listings, resolver *availability.Resolver, checkout *booking.Checkout, reservations Reservations, intents IntentStash, logger observability.Logger, readiness map[string]Pinger) *Handlers {
	return &Handlers{
		listings:     listings,
		resolver:     resolver,
		checkout:     checkout,
		reservations: reservations,
		intents:      intents,
		logger:       logger,
		readiness:    readiness,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

type checkRequest struct {
	ListingID    string `json:"listingId" validate:"required"`
	StartDate    string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate      string `json:"endDate" validate:"required,datetime=2006-01-02"`
	CheckInTime  string `json:"checkInTime" validate:"required,datetime=15:04"`
	CheckOutTime string `json:"checkOutTime" validate:"required,datetime=15:04"`
}

type quoteRequest struct {
	ListingID string `json:"listingId" validate:"required"`
	domain.BookingWindow
}

type claimRequest struct {
	ListingID string `json:"listingId" validate:"required"`
}

// CheckAvailability is advisory and may be stale by the time of commit.
func (h *Handlers) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	listing, err := h.listings.Listing(r.Context(), req.ListingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	window := domain.BookingWindow{
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		CheckInTime:  req.CheckInTime,
		CheckOutTime: req.CheckOutTime,
		Guests:       1,
	}
	span, err := window.Parse()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.resolver.Check(r.Context(), listing.ID, span.Interval(listing.Location())))
}

func (h *Handlers) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	listing, err := h.listings.Listing(r.Context(), req.ListingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	quote, err := h.checkout.Price(listing, req.BookingWindow)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// CommitIntent re-prices the intent and reserves the window. The response
// carries either a checkoutUrl or a bookingId.
func (h *Handlers) CommitIntent(w http.ResponseWriter, r *http.Request) {
	var intent domain.BookingIntent
	if !h.decode(w, r, &intent) {
		return
	}
	listing, err := h.listings.Listing(r.Context(), intent.ListingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, res, err := h.checkout.Submit(r.Context(), listing, UserFromContext(r.Context()), intent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	LoggerFrom(r.Context(), h.logger).
		WithField("reservation_id", res.ID).
		WithField("listing_id", res.ListingID).
		Info("booking intent committed")
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) StashIntent(w http.ResponseWriter, r *http.Request) {
	var intent domain.BookingIntent
	if !h.decode(w, r, &intent) {
		return
	}
	if _, err := h.listings.Listing(r.Context(), intent.ListingID); err != nil {
		h.writeError(w, r, err)
		return
	}
	token, expiresAt, err := h.intents.Stash(r.Context(), intent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) ClaimIntent(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !h.decode(w, r, &req) {
		return
	}
	intent, err := h.intents.Claim(r.Context(), chi.URLParam(r, "token"), req.ListingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, ok := h.ownedReservation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TransitionReservation returns a handler moving the reservation to status.
func (h *Handlers) TransitionReservation(to domain.ReservationStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, ok := h.ownedReservation(w, r)
		if !ok {
			return
		}
		updated, err := h.reservations.UpdateStatus(r.Context(), res.ID, to, time.Now())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		LoggerFrom(r.Context(), h.logger).
			WithField("reservation_id", res.ID).
			WithField("status", to).
			Info("reservation status changed")
		writeJSON(w, http.StatusOK, updated)
	}
}

// ownedReservation loads the path reservation and hides it from anyone but
// its owner.
func (h *Handlers) ownedReservation(w http.ResponseWriter, r *http.Request) (*domain.Reservation, bool) {
	userID := UserFromContext(r.Context())
	if userID == "" {
		h.writeError(w, r, domain.ErrAuthenticationRequired)
		return nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_id", Message: "invalid reservation id"})
		return nil, false
	}
	res, err := h.reservations.GetReservation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if res.UserID != userID {
		h.writeError(w, r, domain.ErrNotFound)
		return nil, false
	}
	return res, true
}

func (h *Handlers) GetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.Listing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *Handlers) CreateListing(w http.ResponseWriter, r *http.Request) {
	owner := UserFromContext(r.Context())
	if owner == "" {
		h.writeError(w, r, domain.ErrAuthenticationRequired)
		return
	}
	var l domain.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return
	}
	if l.Rates.Currency != "" && !pricing.ValidCurrency(l.Rates.Currency) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_currency", Message: "unknown ISO 4217 currency"})
		return
	}
	l.OwnerID = owner
	if err := h.listings.Create(r.Context(), l); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// UpdateRates answers 404 for listings the caller does not own.
func (h *Handlers) UpdateRates(w http.ResponseWriter, r *http.Request) {
	owner := UserFromContext(r.Context())
	if owner == "" {
		h.writeError(w, r, domain.ErrAuthenticationRequired)
		return
	}
	var rates domain.RateSheet
	if err := json.NewDecoder(r.Body).Decode(&rates); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return
	}
	if rates.Currency != "" && !pricing.ValidCurrency(rates.Currency) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_currency", Message: "unknown ISO 4217 currency"})
		return
	}
	if err := h.listings.UpdateRates(r.Context(), chi.URLParam(r, "id"), owner, rates); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz pings every dependency concurrently and fails if any is down.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for name, ping := range h.readiness {
		name, ping := name, ping
		g.Go(func() error {
			return errors.Wrap(ping(ctx), name)
		})
	}
	if err := g.Wait(); err != nil {
		LoggerFrom(r.Context(), h.logger).WithError(err).Warn("readiness check failed")
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Message: err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		fields := []string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: "request failed validation", Fields: fields})
		return false
	}
	return true
}
