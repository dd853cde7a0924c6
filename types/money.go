package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CurrencyKES is the ISO 4217 code for Kenyan Shillings.
const CurrencyKES = "KES"

// Money represents a monetary value in the smallest unit the payment rail
// settles in. M-Pesa settles whole shillings, so KES amounts carry no
// minor unit. All arithmetic is integer-only.
//
// Examples:
//   - KES(1500) = KSh 1,500
//   - KES(99)   = KSh 99
type Money struct {
	Amount   int64  `json:"amount"   bson:"amount"`   // Whole shillings for KES
	Currency string `json:"currency" bson:"currency"` // ISO 4217 uppercase: "KES"
}

// KES creates a Money value in Kenyan Shillings.
func KES(shillings int64) Money { return Money{Amount: shillings, Currency: CurrencyKES} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToUpper(currency)} }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Multiply multiplies the Money by a quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Within reports whether the amount lies in [lo, hi]. Panics if currencies don't match.
func (m Money) Within(lo, hi Money) bool {
	m.assertSameCurrency(lo)
	m.assertSameCurrency(hi)
	return m.Amount >= lo.Amount && m.Amount <= hi.Amount
}

// FormatMajor returns the amount with thousands separators and no symbol,
// e.g. "1,500" for KES(1500).
func (m Money) FormatMajor() string {
	isNegative := m.Amount < 0
	abs := m.Amount
	if isNegative {
		abs = -abs
	}

	digits := strconv.FormatInt(abs, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if isNegative {
		return "-" + b.String()
	}
	return b.String()
}

// String returns a human-readable string with currency symbol.
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

// currencySymbol returns the display prefix for a currency code.
func currencySymbol(currency string) string {
	switch strings.ToUpper(currency) {
	case CurrencyKES:
		return "KSh "
	case "USD":
		return "$"
	default:
		return strings.ToUpper(currency) + " "
	}
}

// Sum calculates the sum of multiple Money values. All must have the same currency.
func Sum(values ...Money) Money {
	if len(values) == 0 {
		return Zero(CurrencyKES)
	}

	result := values[0]
	for i := 1; i < len(values); i++ {
		result = result.Add(values[i])
	}
	return result
}
