// Package pricing selects a billing granularity for a booking window and turns
// it into an itemized quote. Everything here is a pure function of its inputs.
package pricing

import "github.com/robertarktes/coworking-booking-engine/internal/domain"

// MonthlyThresholdNights is the stay length from which a monthly rate is
// preferred over the fallbacks. It is a product policy value, not a calendar month.
const MonthlyThresholdNights = 27

// ResolveMode picks exactly one pricing mode. Rules are evaluated in order and
// the first match wins:
//
//  1. hourly rate, positive duration and a single night -> hour
//  2. daily rate -> day
//  3. monthly rate and at least MonthlyThresholdNights nights -> month
//  4. hourly rate -> hour, else monthly rate -> month, else day
func ResolveMode(rates domain.RateSheet, span domain.Span) domain.PricingMode {
	nights := span.Nights()

	switch {
	case rates.HasHourly() && span.Hours() > 0 && nights == 1:
		return domain.ModeHour
	case rates.HasDaily():
		return domain.ModeDay
	case rates.HasMonthly() && nights >= MonthlyThresholdNights:
		return domain.ModeMonth
	case rates.HasHourly():
		return domain.ModeHour
	case rates.HasMonthly():
		return domain.ModeMonth
	}
	return domain.ModeDay
}
