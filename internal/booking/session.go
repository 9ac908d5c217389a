// Package booking drives a booking intent from editing to a committed
// reservation.
//
// A Session recomputes the quote synchronously on every input change and runs
// one debounced availability check in the background. A newer input cancels the
// previous check and only the latest response is applied. Commit is allowed
// only once the latest check reported the window as available.
package booking

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
	"github.com/robertarktes/coworking-booking-engine/internal/pricing"
)

type State string

const (
	StateEditing    State = "editing"
	StateValidating State = "validating"
	StateReady      State = "ready"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
)

const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultCheckTimeout = 2 * time.Second
)

type Checker interface {
	CheckAvailability(ctx context.Context, listing domain.Listing, w domain.BookingWindow) (bool, error)
}

type CommitResult struct {
	BookingID   string `json:"bookingId,omitempty"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

type Committer interface {
	Commit(ctx context.Context, intent domain.BookingIntent) (CommitResult, error)
}

type CommitterFunc func(ctx context.Context, intent domain.BookingIntent) (CommitResult, error)

func (f CommitterFunc) Commit(ctx context.Context, intent domain.BookingIntent) (CommitResult, error) {
	return f(ctx, intent)
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	State  State
	Window domain.BookingWindow
	Quote  *domain.Quote
	// Err explains why the session is not Ready: a validation error,
	// domain.ErrUnavailable or domain.ErrSlotTaken.
	Err      error
	Degraded bool
	Result   *CommitResult
}

type Options struct {
	Debounce     time.Duration
	CheckTimeout time.Duration
	Clock        domain.Clock
}

type Session struct {
	listing   domain.Listing
	checker   Checker
	committer Committer
	logger    observability.Logger
	opts      Options

	mu          sync.Mutex
	id          uuid.UUID
	createdAt   time.Time
	state       State
	window      domain.BookingWindow
	quote       *domain.Quote
	err         error
	degraded    bool
	result      *CommitResult
	gen         uint64
	cancelCheck context.CancelFunc
	changed     chan struct{}
}

func NewSession(listing domain.Listing, checker Checker, committer Committer, logger observability.Logger, opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	if opts.Clock == nil {
		opts.Clock = domain.RealClock{}
	}
	return &Session{
		listing:   listing,
		checker:   checker,
		committer: committer,
		logger:    logger.WithField("listing_id", listing.ID),
		opts:      opts,
		id:        uuid.New(),
		createdAt: opts.Clock.Now(),
		state:     StateEditing,
		changed:   make(chan struct{}),
	}
}

// ResumeSession restores a session from a stashed intent. The intent must
// belong to listing.
func ResumeSession(listing domain.Listing, intent domain.BookingIntent, checker Checker, committer Committer, logger observability.Logger, opts Options) (*Session, error) {
	if intent.ListingID != listing.ID {
		return nil, domain.ErrIntentMismatch
	}
	s := NewSession(listing, checker, committer, logger, opts)
	if intent.ID != uuid.Nil {
		s.id = intent.ID
	}
	if _, err := s.Update(intent.Window); err != nil {
		return nil, err
	}
	return s, nil
}

// Update applies a new window, recomputes the quote and schedules a fresh
// availability check, superseding any check in flight.
func (s *Session) Update(w domain.BookingWindow) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCommitting:
		return s.snapshotLocked(), domain.ErrCommitInProgress
	case StateCommitted:
		return s.snapshotLocked(), domain.ErrIntentConsumed
	}

	s.supersedeLocked()
	s.window = w
	s.quote = nil
	s.err = nil
	s.degraded = false

	span, err := w.Parse()
	if err == nil {
		q := pricing.Quote(s.listing.Rates, span)
		s.quote = &q
		err = span.Validate(s.listing)
	}
	if err != nil {
		s.err = err
		s.setStateLocked(StateEditing)
		return s.snapshotLocked(), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelCheck = cancel
	s.setStateLocked(StateValidating)
	go s.check(ctx, s.gen, w)

	return s.snapshotLocked(), nil
}

func (s *Session) check(ctx context.Context, gen uint64, w domain.BookingWindow) {
	timer := time.NewTimer(s.opts.Debounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
	available, err := s.checker.CheckAvailability(cctx, s.listing, w)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || ctx.Err() != nil {
		return
	}
	s.cancelCheck = nil

	if err != nil {
		if errors.Is(err, domain.ErrInvalidWindow) {
			s.err = err
			s.setStateLocked(StateEditing)
			return
		}
		s.logger.WithError(err).Warn("availability check failed, treating window as available")
		s.degraded = true
		available = true
	}
	if !available {
		s.err = domain.ErrUnavailable
		s.setStateLocked(StateEditing)
		return
	}
	s.setStateLocked(StateReady)
}

// Commit submits the intent. It is only allowed from StateReady and always runs
// to completion once issued. A lost race returns domain.ErrSlotTaken and moves
// the session back to editing; other failures leave it Ready for a retry.
func (s *Session) Commit(ctx context.Context) (CommitResult, error) {
	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateCommitting:
		s.mu.Unlock()
		return CommitResult{}, domain.ErrCommitInProgress
	case StateCommitted:
		s.mu.Unlock()
		return CommitResult{}, domain.ErrIntentConsumed
	default:
		s.mu.Unlock()
		return CommitResult{}, domain.ErrNotReady
	}
	intent := s.intentLocked()
	s.setStateLocked(StateCommitting)
	s.mu.Unlock()

	res, err := s.committer.Commit(context.WithoutCancel(ctx), intent)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.result = &res
		s.setStateLocked(StateCommitted)
		return res, nil
	case errors.Is(err, domain.ErrAvailabilityConflict):
		s.gen++
		s.err = domain.ErrSlotTaken
		s.setStateLocked(StateEditing)
		return CommitResult{}, domain.ErrSlotTaken
	default:
		s.logger.WithError(err).Warn("commit failed")
		s.setStateLocked(StateReady)
		return CommitResult{}, err
	}
}

// Intent returns the draft to hand to checkout, carrying the last quote shown.
func (s *Session) Intent() domain.BookingIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intentLocked()
}

func (s *Session) intentLocked() domain.BookingIntent {
	var q *domain.Quote
	if s.quote != nil {
		copied := *s.quote
		q = &copied
	}
	return domain.BookingIntent{
		ID:        s.id,
		ListingID: s.listing.ID,
		Window:    s.window,
		Quote:     q,
		CreatedAt: s.createdAt,
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Wait blocks until cond holds for the current snapshot or ctx is done.
func (s *Session) Wait(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		s.mu.Lock()
		snap := s.snapshotLocked()
		changed := s.changed
		s.mu.Unlock()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-changed:
		}
	}
}

// Close cancels any availability check in flight.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
}

func (s *Session) supersedeLocked() {
	s.gen++
	if s.cancelCheck != nil {
		s.cancelCheck()
		s.cancelCheck = nil
	}
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:    s.state,
		Window:   s.window,
		Err:      s.err,
		Degraded: s.degraded,
	}
	if s.quote != nil {
		q := *s.quote
		snap.Quote = &q
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}
