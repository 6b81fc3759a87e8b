package money

import (
	"encoding/json"
	"fmt"
	"math"
)

// Currency represents an ISO 4217 currency code
type Currency string

// USD is the only currency the platform settles in for v1.
const USD Currency = "USD"

// Supported reports whether the platform accepts the currency.
func Supported(c Currency) bool {
	return c == USD
}

// Money represents a monetary amount in minor units (cents)
type Money struct {
	AmountMinor int64    `json:"amount_minor"`
	Currency    Currency `json:"currency"`
}

// New creates a new Money value from minor units
func New(amountMinor int64, currency Currency) Money {
	return Money{
		AmountMinor: amountMinor,
		Currency:    currency,
	}
}

// NewFromMajor creates Money from major units (e.g., dollars)
func NewFromMajor(amountMajor float64, currency Currency) Money {
	return Money{
		AmountMinor: int64(math.Round(amountMajor * 100)),
		Currency:    currency,
	}
}

// Zero returns a zero amount for a currency
func Zero(currency Currency) Money {
	return Money{AmountMinor: 0, Currency: currency}
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.AmountMinor < 0
}

// Add adds two money values (must be same currency)
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{
		AmountMinor: m.AmountMinor + other.AmountMinor,
		Currency:    m.Currency,
	}, nil
}

// MustAdd adds two money values, panics on currency mismatch
func (m Money) MustAdd(other Money) Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Compare returns -1, 0, or 1
func (m Money) Compare(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	if m.AmountMinor < other.AmountMinor {
		return -1, nil
	}
	if m.AmountMinor > other.AmountMinor {
		return 1, nil
	}
	return 0, nil
}

// Equal checks equality
func (m Money) Equal(other Money) bool {
	return m.AmountMinor == other.AmountMinor && m.Currency == other.Currency
}

// GreaterThan checks if m > other
func (m Money) GreaterThan(other Money) bool {
	cmp, err := m.Compare(other)
	return err == nil && cmp > 0
}

// LessThan checks if m < other
func (m Money) LessThan(other Money) bool {
	cmp, err := m.Compare(other)
	return err == nil && cmp < 0
}

// ToMajor converts to major units as float
func (m Money) ToMajor() float64 {
	return float64(m.AmountMinor) / 100
}

// String returns a human-readable representation
func (m Money) String() string {
	if m.AmountMinor < 0 {
		return fmt.Sprintf("-$%.2f", -m.ToMajor())
	}
	return fmt.Sprintf("$%.2f", m.ToMajor())
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AmountMinor int64  `json:"amount_minor"`
		Currency    string `json:"currency"`
	}{
		AmountMinor: m.AmountMinor,
		Currency:    string(m.Currency),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		AmountMinor int64  `json:"amount_minor"`
		Currency    string `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.AmountMinor = v.AmountMinor
	m.Currency = Currency(v.Currency)
	return nil
}

// Sum adds up multiple money values
func Sum(amounts ...Money) (Money, error) {
	if len(amounts) == 0 {
		return Money{}, nil
	}

	result := amounts[0]
	for _, a := range amounts[1:] {
		var err error
		result, err = result.Add(a)
		if err != nil {
			return Money{}, err
		}
	}
	return result, nil
}

// Average returns the mean of the given values rounded to the nearest
// minor unit. All values must share a currency.
func Average(amounts ...Money) (Money, error) {
	if len(amounts) == 0 {
		return Money{}, nil
	}

	total, err := Sum(amounts...)
	if err != nil {
		return Money{}, err
	}
	return Money{
		AmountMinor: int64(math.Round(float64(total.AmountMinor) / float64(len(amounts)))),
		Currency:    total.Currency,
	}, nil
}
