package pricing

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
)

// ProrationBaselineDays is the fixed month length used to pro-rate short
// monthly stays.
const ProrationBaselineDays = 30

// UnitPrice returns the first positive rate applicable to mode, preferring seat
// rates over room rates over whole-unit rates. Zero means unbookable in mode.
func UnitPrice(rates domain.RateSheet, mode domain.PricingMode) float64 {
	var candidates []*float64
	switch mode {
	case domain.ModeHour:
		candidates = rates.HourlyRates()
	case domain.ModeDay:
		candidates = rates.DailyRates()
	case domain.ModeMonth:
		candidates = rates.MonthlyRates()
	}
	for _, p := range candidates {
		if p != nil && *p > 0 {
			return *p
		}
	}
	return 0
}

func quantity(mode domain.PricingMode, span domain.Span) decimal.Decimal {
	nights := span.Nights()
	switch mode {
	case domain.ModeHour:
		return decimal.NewFromFloat(span.Hours())
	case domain.ModeMonth:
		if nights >= MonthlyThresholdNights {
			return decimal.NewFromInt(1)
		}
		return decimal.NewFromInt(int64(nights)).Div(decimal.NewFromInt(ProrationBaselineDays))
	}
	if nights < 1 {
		nights = 1
	}
	return decimal.NewFromInt(int64(nights))
}

// Quantity is the billed number of units for mode, before rounding.
func Quantity(mode domain.PricingMode, span domain.Span) float64 {
	return quantity(mode, span).InexactFloat64()
}

// BuildQuote produces the itemized breakdown for an already resolved mode.
// Rounding to cents happens once, on the final figures.
func BuildQuote(rates domain.RateSheet, mode domain.PricingMode, span domain.Span) domain.Quote {
	unit := decimal.NewFromFloat(UnitPrice(rates, mode))
	qty := quantity(mode, span)

	base := unit.Mul(qty)
	if base.IsNegative() {
		base = decimal.Zero
	}
	service := fee(rates.ServiceFee)
	cleaning := fee(rates.CleaningFee)
	total := base.Add(service).Add(cleaning)

	return domain.Quote{
		Mode:      mode,
		UnitPrice: cents(unit),
		Qty:       cents(qty),
		Base:      cents(base),
		Fees: domain.Fees{
			Service:  cents(service),
			Cleaning: cents(cleaning),
		},
		Total:          cents(total),
		Currency:       rates.Currency,
		CurrencySymbol: Symbol(rates.Currency),
		Label:          Label(mode, qty.Round(2).InexactFloat64()),
	}
}

// Quote resolves the mode and builds the quote in one step.
func Quote(rates domain.RateSheet, span domain.Span) domain.Quote {
	return BuildQuote(rates, ResolveMode(rates, span), span)
}

// Label renders a display string such as "3 night(s)" or "2.5 hour(s)".
func Label(mode domain.PricingMode, qty float64) string {
	unit := "night"
	switch mode {
	case domain.ModeHour:
		unit = "hour"
	case domain.ModeMonth:
		unit = "month"
	}
	return fmt.Sprintf("%s %s(s)", strconv.FormatFloat(qty, 'f', -1, 64), unit)
}

func fee(p *float64) decimal.Decimal {
	if p == nil || *p < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*p)
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
