package booking

import (
	"context"
	"net/url"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/coworking-booking-engine/internal/availability"
	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/pricing"
)

// Checkout turns a submitted intent into a held reservation. It re-validates
// and re-prices on the server; the quote the client attached is display-only.
type Checkout struct {
	resolver        *availability.Resolver
	checkoutBaseURL string
}

func NewCheckout(resolver *availability.Resolver, checkoutBaseURL string) *Checkout {
	return &Checkout{resolver: resolver, checkoutBaseURL: checkoutBaseURL}
}

// Price returns the authoritative quote for a window on listing.
func (c *Checkout) Price(listing domain.Listing, w domain.BookingWindow) (domain.Quote, error) {
	span, err := w.Validate(listing)
	if err != nil {
		return domain.Quote{}, err
	}
	if !listing.Rates.Bookable() {
		return domain.Quote{}, errors.Wrap(domain.ErrInvalidInput, "listing has no duration rate")
	}
	return pricing.Quote(listing.Rates, span), nil
}

func (c *Checkout) Submit(ctx context.Context, listing domain.Listing, userID string, intent domain.BookingIntent) (CommitResult, domain.Reservation, error) {
	if userID == "" {
		return CommitResult{}, domain.Reservation{}, domain.ErrAuthenticationRequired
	}
	if intent.ListingID != listing.ID {
		return CommitResult{}, domain.Reservation{}, domain.ErrIntentMismatch
	}
	quote, err := c.Price(listing, intent.Window)
	if err != nil {
		return CommitResult{}, domain.Reservation{}, err
	}
	span, _ := intent.Window.Parse()

	res, err := c.resolver.Commit(ctx, availability.CommitRequest{
		ListingID: listing.ID,
		UserID:    userID,
		Interval:  span.Interval(listing.Location()),
		Guests:    span.Guests,
		Quote:     &quote,
	})
	if err != nil {
		return CommitResult{}, domain.Reservation{}, err
	}
	return c.result(res), res, nil
}

// Committer binds Submit to one listing and user for in-process sessions.
func (c *Checkout) Committer(listing domain.Listing, userID string) Committer {
	return CommitterFunc(func(ctx context.Context, intent domain.BookingIntent) (CommitResult, error) {
		res, _, err := c.Submit(ctx, listing, userID, intent)
		return res, err
	})
}

func (c *Checkout) result(res domain.Reservation) CommitResult {
	if c.checkoutBaseURL == "" {
		return CommitResult{BookingID: res.ID.String()}
	}
	u, err := url.Parse(c.checkoutBaseURL)
	if err != nil {
		return CommitResult{BookingID: res.ID.String()}
	}
	q := u.Query()
	q.Set("bookingId", res.ID.String())
	u.RawQuery = q.Encode()
	return CommitResult{CheckoutURL: u.String()}
}
