package domain

import (
	"sort"
	"strings"
)

// Country is the dialing profile of a supported recipient country.
type Country struct {
	Code       string // ISO 3166-1 alpha-2
	Digits     int    // national significant number length
	DialPrefix string // E.164 prefix including '+'
}

var countries = map[string]Country{
	"US": {Code: "US", Digits: 10, DialPrefix: "+1"},
	"MA": {Code: "MA", Digits: 9, DialPrefix: "+212"},
	"PH": {Code: "PH", Digits: 10, DialPrefix: "+63"},
}

// LookupCountry returns the profile for code (case-insensitive). Unknown
// codes yield a ConfigError wrapping ErrUnsupportedCountry.
func LookupCountry(code string) (Country, error) {
	c, ok := countries[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Country{}, NewConfigError(ErrUnsupportedCountry,
			"%q (only %s are valid)", code, strings.Join(CountryCodes(), ", "))
	}
	return c, nil
}

// CountryCodes lists supported country codes in sorted order.
func CountryCodes() []string {
	out := make([]string, 0, len(countries))
	for k := range countries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Currency is an ISO 4217 code accepted for payouts.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyPHP Currency = "PHP"
)

// DefaultCurrency is applied to worksheet rows without a currency.
const DefaultCurrency = CurrencyUSD

// IsValid reports whether c is an accepted payout currency.
func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyPHP:
		return true
	}
	return false
}

// ParseCurrency upper-cases s and validates it.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", NewConfigError(ErrUnsupportedCurrency, "%q (only USD and PHP are valid)", s)
	}
	return c, nil
}
