package pricing

import "golang.org/x/text/currency"

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"PHP": "₱",
	"NGN": "₦",
	"BRL": "R$",
	"AUD": "A$",
	"CAD": "CA$",
	"MXN": "MX$",
	"SGD": "S$",
	"ZAR": "R",
	"KES": "KSh",
}

// Symbol returns the display symbol for an ISO 4217 code. Unknown but valid
// codes are shown as the code itself; invalid input yields "".
func Symbol(code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return ""
	}
	if s, ok := symbols[unit.String()]; ok {
		return s
	}
	return unit.String()
}

// ValidCurrency reports whether code is a recognised ISO 4217 currency.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}
