package ledger

import "strings"

// DefaultCurrency is used when an expense is created without a currency.
const DefaultCurrency = "INR"

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"INR": "₹",
}

// CurrencySymbol maps a currency code to its glyph. Unknown codes get the rupee sign.
func CurrencySymbol(code string) string {
	if s, ok := currencySymbols[code]; ok {
		return s
	}
	return currencySymbols[DefaultCurrency]
}

// NormalizeCurrency upper-cases a code and applies DefaultCurrency to an empty one.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if len(code) != 3 {
		return "", invalid("currency", "%q is not a 3-letter code", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", invalid("currency", "%q is not a 3-letter code", code)
		}
	}
	return code, nil
}
