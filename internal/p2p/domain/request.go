// Package domain defines the entities and lifecycle rules for peer-to-peer
// payment matching: deposit and withdrawal requests, the matches that pair
// them, and the errors their operations raise.
package domain

import (
	"time"

	"betops/internal/common/money"
)

// RequestKind distinguishes money coming into the book from money going out.
type RequestKind string

const (
	KindDeposit    RequestKind = "deposit"
	KindWithdrawal RequestKind = "withdrawal"
)

// ParseRequestKind validates a kind string.
func ParseRequestKind(s string) (RequestKind, error) {
	switch k := RequestKind(s); k {
	case KindDeposit, KindWithdrawal:
		return k, nil
	default:
		return "", NewValidationError("kind", "kind must be deposit or withdrawal")
	}
}

// Opposite returns the kind this kind pairs with.
func (k RequestKind) Opposite() RequestKind {
	if k == KindDeposit {
		return KindWithdrawal
	}
	return KindDeposit
}

// RequestStatus represents the status of a payment request.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestMatched    RequestStatus = "matched"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
	RequestExpired    RequestStatus = "expired"
)

// Priority orders how prominently a request surfaces on the dashboard.
// Matching itself is strictly first-in-first-out.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority validates a priority string. Empty defaults to normal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	switch p := Priority(s); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", NewValidationError("priority", "priority must be one of low, normal, high, urgent")
	}
}

// PaymentRequest is a customer's ask to move money on or off the book
// through a peer on the same rail.
type PaymentRequest struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id"`
	Kind       RequestKind    `json:"kind"`
	Rail       Rail           `json:"rail"`
	Amount     money.Money    `json:"amount"`
	Status     RequestStatus  `json:"status"`
	Priority   Priority       `json:"priority"`
	Details    PaymentDetails `json:"details"`
	Notes      string         `json:"notes,omitempty"`

	// VerificationCode is quoted in the payment memo so operators can
	// tie an app transfer back to this request.
	VerificationCode string `json:"verification_code"`

	// Match reference, set when the request is paired.
	MatchID     string     `json:"match_id,omitempty"`
	MatchedWith string     `json:"matched_with,omitempty"`
	MatchedAt   *time.Time `json:"matched_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewPaymentRequest validates input and builds a pending request with a
// fresh verification code. The request expires ttl after creation if it
// is never matched.
func NewPaymentRequest(id, customerID string, kind RequestKind, rail Rail, amount money.Money, details PaymentDetails, ttl time.Duration) (*PaymentRequest, error) {
	if id == "" {
		return nil, NewValidationError("id", "id is required")
	}
	if customerID == "" {
		return nil, NewValidationError("customer_id", "customer_id is required")
	}
	if _, err := ParseRequestKind(string(kind)); err != nil {
		return nil, err
	}
	if !money.Supported(amount.Currency) {
		return nil, NewValidationError("amount.currency", "currency not supported")
	}

	limits, ok := LimitsFor(rail)
	if !ok {
		return nil, NewValidationError("rail", "unsupported rail "+string(rail))
	}
	if amount.LessThan(limits.Min) {
		return nil, NewValidationError("amount", "amount below rail minimum "+limits.Min.String())
	}
	if amount.GreaterThan(limits.Max) {
		return nil, NewValidationError("amount", "amount above rail maximum "+limits.Max.String())
	}

	if err := details.Validate(rail); err != nil {
		return nil, err
	}

	code, err := NewVerificationCode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &PaymentRequest{
		ID:               id,
		CustomerID:       customerID,
		Kind:             kind,
		Rail:             rail,
		Amount:           amount,
		Status:           RequestPending,
		Priority:         PriorityNormal,
		Details:          details,
		VerificationCode: code,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}, nil
}

// MarkMatched transitions a pending request to matched.
func (r *PaymentRequest) MarkMatched(matchID, counterpartyCustomerID string) error {
	if r.Status != RequestPending {
		return NewStateViolation("payment_request", r.ID, "only pending requests can be matched")
	}
	now := time.Now().UTC()
	r.Status = RequestMatched
	r.MatchID = matchID
	r.MatchedWith = counterpartyCustomerID
	r.MatchedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkInProgress transitions a matched request to in_progress. Entered
// when the peer payment has been reported sent.
func (r *PaymentRequest) MarkInProgress() error {
	if r.Status != RequestMatched {
		return NewStateViolation("payment_request", r.ID, "only matched requests can move to in_progress")
	}
	r.Status = RequestInProgress
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCompleted transitions an in_progress request to completed.
func (r *PaymentRequest) MarkCompleted() error {
	if r.Status != RequestInProgress {
		return NewStateViolation("payment_request", r.ID, "only in_progress requests can be completed")
	}
	r.Status = RequestCompleted
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCancelled transitions a matched or in_progress request to cancelled.
// Cancelled requests never return to the queue.
func (r *PaymentRequest) MarkCancelled() error {
	if r.Status != RequestMatched && r.Status != RequestInProgress {
		return NewStateViolation("payment_request", r.ID, "only matched or in_progress requests can be cancelled")
	}
	r.Status = RequestCancelled
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkExpired transitions a pending request to expired.
func (r *PaymentRequest) MarkExpired() error {
	if r.Status != RequestPending {
		return NewStateViolation("payment_request", r.ID, "only pending requests can expire")
	}
	r.Status = RequestExpired
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal returns true if the request is in a terminal state.
func (r *PaymentRequest) IsTerminal() bool {
	return r.Status == RequestCompleted || r.Status == RequestCancelled ||
		r.Status == RequestExpired
}

// Expired reports whether a pending request has outlived its window.
func (r *PaymentRequest) Expired(asOf time.Time) bool {
	return r.Status == RequestPending && asOf.After(r.ExpiresAt)
}
