// Package normalize turns locale-formatted export values into canonical amounts and dates.
package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount parses a currency string such as "$1,200.00", "(1,200.00)" or "-45" into a signed
// float. Parenthesized, minus-prefixed and minus-suffixed values are negative. Anything that
// is not a number after cleaning yields 0; callers that need to tell a bad value from a real
// zero must check the raw text themselves.
func Amount(raw string) float64 {
	d, ok := ParseDecimal(raw)
	if !ok {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// ParseDecimal is Amount with an explicit success flag.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	s := clean(raw)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")
	if s == "" || strings.ContainsAny(s, "()-+") {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Abs().Neg()
	}
	return d, true
}

// AmountKey formats an amount the way natural keys compare it.
func AmountKey(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

func clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	return strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', ',', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, s)
}
