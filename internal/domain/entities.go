package domain

import (
	"time"

	"github.com/google/uuid"
)

// RateSheet holds a listing's optional unit prices and flat fees. A nil rate is
// not configured.
type RateSheet struct {
	PriceSeatHour   *float64 `json:"priceSeatHour,omitempty" bson:"price_seat_hour,omitempty"`
	PriceRoomHour   *float64 `json:"priceRoomHour,omitempty" bson:"price_room_hour,omitempty"`
	PriceSeatDay    *float64 `json:"priceSeatDay,omitempty" bson:"price_seat_day,omitempty"`
	PriceRoomDay    *float64 `json:"priceRoomDay,omitempty" bson:"price_room_day,omitempty"`
	PriceWholeDay   *float64 `json:"priceWholeDay,omitempty" bson:"price_whole_day,omitempty"`
	PriceWholeMonth *float64 `json:"priceWholeMonth,omitempty" bson:"price_whole_month,omitempty"`
	ServiceFee      *float64 `json:"serviceFee,omitempty" bson:"service_fee,omitempty"`
	CleaningFee     *float64 `json:"cleaningFee,omitempty" bson:"cleaning_fee,omitempty"`
	Currency        string   `json:"currency" bson:"currency"`
}

func (r RateSheet) HourlyRates() []*float64 { return []*float64{r.PriceSeatHour, r.PriceRoomHour} }

func (r RateSheet) DailyRates() []*float64 {
	return []*float64{r.PriceSeatDay, r.PriceRoomDay, r.PriceWholeDay}
}

func (r RateSheet) MonthlyRates() []*float64 { return []*float64{r.PriceWholeMonth} }

func (r RateSheet) HasHourly() bool  { return anyPositive(r.HourlyRates()) }
func (r RateSheet) HasDaily() bool   { return anyPositive(r.DailyRates()) }
func (r RateSheet) HasMonthly() bool { return anyPositive(r.MonthlyRates()) }

// Bookable reports whether at least one duration-based rate is configured.
func (r RateSheet) Bookable() bool {
	return r.HasHourly() || r.HasDaily() || r.HasMonthly()
}

// Validate rejects negative rates and fees.
func (r RateSheet) Validate() error {
	all := append(append(append(r.HourlyRates(), r.DailyRates()...), r.MonthlyRates()...), r.ServiceFee, r.CleaningFee)
	for _, p := range all {
		if p != nil && *p < 0 {
			return ErrInvalidInput
		}
	}
	return nil
}

func anyPositive(rates []*float64) bool {
	for _, p := range rates {
		if p != nil && *p > 0 {
			return true
		}
	}
	return false
}

// Rate is a convenience constructor for optional rate fields.
func Rate(v float64) *float64 { return &v }

type Listing struct {
	ID       string    `json:"id" bson:"_id"`
	OwnerID  string    `json:"ownerId,omitempty" bson:"owner_id"`
	Title    string    `json:"title" bson:"title"`
	Capacity int       `json:"capacity" bson:"capacity"`
	MinHours float64   `json:"minHours,omitempty" bson:"min_hours,omitempty"`
	TimeZone string    `json:"timeZone,omitempty" bson:"time_zone,omitempty"`
	Rates    RateSheet `json:"rates" bson:"rates"`
}

// Location resolves the listing time zone, falling back to UTC.
func (l Listing) Location() *time.Location {
	if l.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type PricingMode string

const (
	ModeHour  PricingMode = "hour"
	ModeDay   PricingMode = "day"
	ModeMonth PricingMode = "month"
)

type Fees struct {
	Service  float64 `json:"service"`
	Cleaning float64 `json:"cleaning"`
}

// Quote is the itemized price for one booking window. All amounts are rounded
// to two decimals.
type Quote struct {
	Mode           PricingMode `json:"mode"`
	UnitPrice      float64     `json:"unitPrice"`
	Qty            float64     `json:"qty"`
	Base           float64     `json:"base"`
	Fees           Fees        `json:"fees"`
	Total          float64     `json:"total"`
	Currency       string      `json:"currency"`
	CurrencySymbol string      `json:"currencySymbol"`
	Label          string      `json:"label"`
}

// Interval is a half-open span of instants [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	ListingID string            `json:"listingId"`
	UserID    string            `json:"userId,omitempty"`
	Interval  Interval          `json:"interval"`
	Status    ReservationStatus `json:"status"`
	Guests    int               `json:"guests"`
	Quote     *Quote            `json:"quote,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
	CreatedAt time.Time         `json:"createdAt"`
}

// BookingIntent is a draft reservation request carried across navigation and
// authentication boundaries.
type BookingIntent struct {
	ID        uuid.UUID     `json:"id"`
	ListingID string        `json:"listingId" validate:"required"`
	Window    BookingWindow `json:"window" validate:"required"`
	Quote     *Quote        `json:"quote,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}
