package domain

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/coworking-booking-engine/internal/timecalc"
)

// BookingWindow is the wire shape of a reservation request: inclusive calendar
// dates as YYYY-MM-DD and times of day as HH:MM.
type BookingWindow struct {
	StartDate    string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate      string `json:"endDate" validate:"required,datetime=2006-01-02"`
	CheckInTime  string `json:"checkInTime" validate:"required,datetime=15:04"`
	CheckOutTime string `json:"checkOutTime" validate:"required,datetime=15:04"`
	Guests       int    `json:"guests" validate:"gte=1"`
}

// Span is a parsed BookingWindow.
type Span struct {
	StartDate time.Time
	EndDate   time.Time
	CheckIn   timecalc.TimeOfDay
	CheckOut  timecalc.TimeOfDay
	Guests    int
}

func (w BookingWindow) Parse() (Span, error) {
	start, err := timecalc.ParseDate(w.StartDate)
	if err != nil {
		return Span{}, errors.Mark(err, ErrInvalidWindow)
	}
	end, err := timecalc.ParseDate(w.EndDate)
	if err != nil {
		return Span{}, errors.Mark(err, ErrInvalidWindow)
	}
	in, err := timecalc.ParseTimeOfDay(w.CheckInTime)
	if err != nil {
		return Span{}, errors.Mark(err, ErrInvalidWindow)
	}
	out, err := timecalc.ParseTimeOfDay(w.CheckOutTime)
	if err != nil {
		return Span{}, errors.Mark(err, ErrInvalidWindow)
	}
	return Span{StartDate: start, EndDate: end, CheckIn: in, CheckOut: out, Guests: w.Guests}, nil
}

func (s Span) Nights() int {
	return timecalc.NightsBetween(s.StartDate, s.EndDate)
}

func (s Span) Hours() float64 {
	return timecalc.HoursBetween(s.StartDate, s.CheckIn, s.EndDate, s.CheckOut)
}

// Interval places the span in loc as [start date + check-in, end date + check-out).
func (s Span) Interval(loc *time.Location) Interval {
	return Interval{
		Start: timecalc.At(s.StartDate, s.CheckIn, loc),
		End:   timecalc.At(s.EndDate, s.CheckOut, loc),
	}
}

// Validate checks date and time ordering, guest count and the listing's minimum
// duration. It never touches the network.
func (s Span) Validate(l Listing) error {
	if s.EndDate.Before(s.StartDate) {
		return errors.Wrap(ErrInvalidWindow, "end date before start date")
	}
	if s.EndDate.Equal(s.StartDate) && s.CheckOut <= s.CheckIn {
		return errors.Wrap(ErrInvalidWindow, "check-out must be after check-in on the same day")
	}
	if s.Guests < 1 {
		return errors.Wrap(ErrInvalidWindow, "at least one guest is required")
	}
	if l.Capacity > 0 && s.Guests > l.Capacity {
		return errors.Wrapf(ErrCapacityExceeded, "%d guests, capacity %d", s.Guests, l.Capacity)
	}
	hours := s.Hours()
	if hours <= 0 {
		return errors.Wrap(ErrInvalidWindow, "empty duration")
	}
	if l.MinHours > 0 && hours < l.MinHours {
		return errors.Wrapf(ErrInvalidWindow, "minimum booking is %v hour(s)", l.MinHours)
	}
	return nil
}

// Validate parses and validates the window against the listing in one step.
func (w BookingWindow) Validate(l Listing) (Span, error) {
	s, err := w.Parse()
	if err != nil {
		return Span{}, err
	}
	return s, s.Validate(l)
}
