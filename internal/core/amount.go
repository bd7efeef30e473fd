package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// NormalizeAmount turns the amount field into a number. Thousands separators
// (commas) and whitespace are dropped first. An empty field is not an error:
// it yields an invalid NullDecimal, which is sent as null.
//
// Examples:
//
//	NormalizeAmount("1,290.00") -> 1290.00
//	NormalizeAmount("")         -> null
//	NormalizeAmount("12abc")    -> ErrInvalidAmount
func NormalizeAmount(s string) (decimal.NullDecimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, ErrInvalidAmount
	}
	return decimal.NewNullDecimal(d), nil
}
