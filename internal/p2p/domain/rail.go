package domain

import (
	"fmt"

	"betops/internal/common/money"
)

// Rail identifies the consumer payment app two customers use to move
// money between each other.
type Rail string

const (
	RailVenmo    Rail = "venmo"
	RailCashApp  Rail = "cashapp"
	RailPayPal   Rail = "paypal"
	RailZelle    Rail = "zelle"
	RailApplePay Rail = "applepay"
)

// Rails returns every supported rail in sweep order.
func Rails() []Rail {
	return []Rail{RailVenmo, RailCashApp, RailPayPal, RailZelle, RailApplePay}
}

// ParseRail validates a rail string.
func ParseRail(s string) (Rail, error) {
	switch r := Rail(s); r {
	case RailVenmo, RailCashApp, RailPayPal, RailZelle, RailApplePay:
		return r, nil
	default:
		return "", NewValidationError("rail", fmt.Sprintf("unsupported rail %q", s))
	}
}

// Limits bound the amount a single request may carry on a rail.
type Limits struct {
	Min money.Money `json:"min"`
	Max money.Money `json:"max"`
}

var railLimits = map[Rail]Limits{
	RailVenmo:    {Min: money.New(100, money.USD), Max: money.New(299_900, money.USD)},
	RailCashApp:  {Min: money.New(100, money.USD), Max: money.New(100_000, money.USD)},
	RailPayPal:   {Min: money.New(100, money.USD), Max: money.New(500_000, money.USD)},
	RailZelle:    {Min: money.New(100, money.USD), Max: money.New(150_000, money.USD)},
	RailApplePay: {Min: money.New(100, money.USD), Max: money.New(200_000, money.USD)},
}

// LimitsFor returns the amount bounds for a rail.
func LimitsFor(rail Rail) (Limits, bool) {
	l, ok := railLimits[rail]
	return l, ok
}

// PaymentDetails carries the rail-specific identifiers a counterparty
// needs to send money to the requester.
type PaymentDetails struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Validate checks that the details carry the identifier the rail requires.
func (d PaymentDetails) Validate(rail Rail) error {
	switch rail {
	case RailVenmo, RailCashApp:
		if d.Username == "" {
			return NewValidationError("details.username", fmt.Sprintf("username is required for %s", rail))
		}
	case RailPayPal:
		if d.Email == "" {
			return NewValidationError("details.email", "email is required for paypal")
		}
	case RailZelle:
		if d.Email == "" && d.Phone == "" {
			return NewValidationError("details", "email or phone is required for zelle")
		}
	case RailApplePay:
		if d.Phone == "" {
			return NewValidationError("details.phone", "phone is required for applepay")
		}
	default:
		return NewValidationError("rail", fmt.Sprintf("unsupported rail %q", rail))
	}
	return nil
}
