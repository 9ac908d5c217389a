// Package availability answers whether a listing is free for an interval and
// atomically reserves it.
//
// Check is advisory: it may be stale by the time the user commits and fails
// open when the store cannot be reached. Commit is the only place the
// no-double-booking rule is enforced; it fails closed with a retryable error.
package availability

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

const (
	DefaultCheckTimeout  = 2 * time.Second
	DefaultCommitTimeout = 5 * time.Second
	DefaultHoldTTL       = 15 * time.Minute
)

type Verdict struct {
	Available bool `json:"available"`
	// Degraded is set when the store could not answer and the verdict is a
	// fail-open default.
	Degraded bool `json:"-"`
}

type Options struct {
	CheckTimeout  time.Duration
	CommitTimeout time.Duration
	HoldTTL       time.Duration
	Clock         domain.Clock
}

type Resolver struct {
	store  Store
	logger observability.Logger
	opts   Options
}

func NewResolver(store Store, logger observability.Logger, opts Options) *Resolver {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = DefaultCommitTimeout
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = DefaultHoldTTL
	}
	if opts.Clock == nil {
		opts.Clock = domain.RealClock{}
	}
	return &Resolver{store: store, logger: logger, opts: opts}
}

// Check reports whether iv is free on the listing.
func (r *Resolver) Check(ctx context.Context, listingID string, iv domain.Interval) Verdict {
	ctx, span := observability.Tracer("availability").Start(ctx, "availability.Check")
	defer span.End()
	span.SetAttributes(attribute.String("listing.id", listingID))

	caller := ctx
	ctx, cancel := context.WithTimeout(ctx, r.opts.CheckTimeout)
	defer cancel()

	taken, err := r.store.HasOverlap(ctx, listingID, iv, r.opts.Clock.Now())
	if err != nil && caller.Err() != nil {
		// superseded by the caller; nobody reads this verdict
		observability.AvailabilityChecks.WithLabelValues("cancelled").Inc()
		return Verdict{Available: true, Degraded: true}
	}
	if err != nil {
		r.logger.WithField("listing_id", listingID).WithError(err).Warn("availability check failed, reporting available")
		observability.AvailabilityChecks.WithLabelValues("fail_open").Inc()
		span.RecordError(err)
		return Verdict{Available: true, Degraded: true}
	}
	if taken {
		observability.AvailabilityChecks.WithLabelValues("unavailable").Inc()
		return Verdict{Available: false}
	}
	observability.AvailabilityChecks.WithLabelValues("available").Inc()
	return Verdict{Available: true}
}

// CheckAvailability validates nothing beyond parsing; it places the window in
// the listing's time zone and runs Check.
func (r *Resolver) CheckAvailability(ctx context.Context, listing domain.Listing, w domain.BookingWindow) (bool, error) {
	s, err := w.Parse()
	if err != nil {
		return false, err
	}
	return r.Check(ctx, listing.ID, s.Interval(listing.Location())).Available, nil
}

type CommitRequest struct {
	ListingID string
	UserID    string
	Interval  domain.Interval
	Guests    int
	Quote     *domain.Quote
}

// Commit reserves the interval as a hold. A lost race yields domain.ErrSlotTaken;
// store failures are marked domain.ErrUpstreamUnavailable and may be retried.
// Cancelling ctx does not abort a commit already issued; only the commit
// timeout bounds it.
func (r *Resolver) Commit(ctx context.Context, req CommitRequest) (domain.Reservation, error) {
	if !req.Interval.Start.Before(req.Interval.End) {
		return domain.Reservation{}, errors.Wrap(domain.ErrInvalidWindow, "empty interval")
	}

	ctx, span := observability.Tracer("availability").Start(context.WithoutCancel(ctx), "availability.Commit")
	defer span.End()
	span.SetAttributes(attribute.String("listing.id", req.ListingID))

	ctx, cancel := context.WithTimeout(ctx, r.opts.CommitTimeout)
	defer cancel()

	res := domain.NewReservation(req.ListingID, req.UserID, req.Interval, req.Guests, req.Quote, r.opts.Clock.Now(), r.opts.HoldTTL)
	logger := r.logger.WithField("listing_id", req.ListingID).WithField("reservation_id", res.ID)

	err := r.store.Reserve(ctx, res)
	switch {
	case err == nil:
		observability.Commits.WithLabelValues("held").Inc()
		logger.Info("reservation held")
		return res, nil
	case errors.Is(err, domain.ErrConflict):
		observability.Commits.WithLabelValues("conflict").Inc()
		logger.Info("commit lost overlap race")
		return domain.Reservation{}, domain.ErrSlotTaken
	default:
		observability.Commits.WithLabelValues("upstream_error").Inc()
		logger.WithError(err).Error("commit failed")
		span.SetStatus(codes.Error, err.Error())
		return domain.Reservation{}, errors.Mark(errors.Wrap(err, "commit reservation"), domain.ErrUpstreamUnavailable)
	}
}
