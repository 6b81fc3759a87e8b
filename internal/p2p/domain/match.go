package domain

import (
	"fmt"
	"time"

	"betops/internal/common/money"
)

// MatchStatus represents the status of a match.
type MatchStatus string

const (
	MatchPending         MatchStatus = "pending"
	MatchPaymentSent     MatchStatus = "payment_sent"
	MatchPaymentReceived MatchStatus = "payment_received"
	MatchVerified        MatchStatus = "verified"
	MatchCompleted       MatchStatus = "completed"
	MatchDisputed        MatchStatus = "disputed"
	MatchCancelled       MatchStatus = "cancelled"
)

// SettlementStatus tracks the handoff of a completed match to the
// settlement service. Empty until completion.
type SettlementStatus string

const (
	SettlementRequested SettlementStatus = "requested"
	SettlementFailed    SettlementStatus = "failed"
)

// Match pairs a deposit request with a withdrawal request of identical
// amount on the same rail. The depositing customer pays the withdrawing
// customer directly through the rail; the book settles both sides once
// the transfer is verified.
type Match struct {
	ID                   string      `json:"id"`
	DepositRequestID     string      `json:"deposit_request_id"`
	WithdrawalRequestID  string      `json:"withdrawal_request_id"`
	DepositCustomerID    string      `json:"deposit_customer_id"`
	WithdrawalCustomerID string      `json:"withdrawal_customer_id"`
	Rail                 Rail        `json:"rail"`
	Amount               money.Money `json:"amount"`

	// EscrowAmount mirrors Amount for bookkeeping. No funds are held
	// by this subsystem.
	EscrowAmount money.Money `json:"escrow_amount"`

	Status MatchStatus `json:"status"`

	// VerificationCode must be quoted by the depositing side to close
	// out the match.
	VerificationCode string `json:"verification_code"`

	PaymentDeadline      time.Time `json:"payment_deadline"`
	VerificationDeadline time.Time `json:"verification_deadline"`

	PaymentSentAt     *time.Time `json:"payment_sent_at,omitempty"`
	PaymentReceivedAt *time.Time `json:"payment_received_at,omitempty"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	CancelReason      string     `json:"cancel_reason,omitempty"`

	// Dispute branch. Resolution happens through an administrative
	// workflow outside this subsystem; the timestamp is set once.
	DisputeReason     string     `json:"dispute_reason,omitempty"`
	DisputedBy        string     `json:"disputed_by,omitempty"`
	DisputedAt        *time.Time `json:"disputed_at,omitempty"`
	DisputeResolvedAt *time.Time `json:"dispute_resolved_at,omitempty"`

	SettlementStatus SettlementStatus `json:"settlement_status,omitempty"`
	SettlementError  string           `json:"settlement_error,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMatch pairs a deposit with a withdrawal. Both requests must be
// pending, on the same rail, for the same amount, and from different
// customers. Violations are internal errors: the engine filters
// candidates before pairing.
func NewMatch(id string, deposit, withdrawal *PaymentRequest, paymentWindow, verificationWindow time.Duration) (*Match, error) {
	if id == "" {
		return nil, NewInvariantViolation("match id is required")
	}
	if deposit.Kind != KindDeposit {
		return nil, NewInvariantViolation(fmt.Sprintf("request %s is not a deposit", deposit.ID))
	}
	if withdrawal.Kind != KindWithdrawal {
		return nil, NewInvariantViolation(fmt.Sprintf("request %s is not a withdrawal", withdrawal.ID))
	}
	if deposit.Status != RequestPending || withdrawal.Status != RequestPending {
		return nil, NewInvariantViolation(fmt.Sprintf("requests %s and %s must both be pending", deposit.ID, withdrawal.ID))
	}
	if deposit.Rail != withdrawal.Rail {
		return nil, NewInvariantViolation(fmt.Sprintf("rail mismatch: %s vs %s", deposit.Rail, withdrawal.Rail))
	}
	if !deposit.Amount.Equal(withdrawal.Amount) {
		return nil, NewInvariantViolation(fmt.Sprintf("amount mismatch: %s vs %s", deposit.Amount, withdrawal.Amount))
	}
	if deposit.CustomerID == withdrawal.CustomerID {
		return nil, NewInvariantViolation("cannot match a customer against themselves")
	}

	code, err := NewVerificationCode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Match{
		ID:                   id,
		DepositRequestID:     deposit.ID,
		WithdrawalRequestID:  withdrawal.ID,
		DepositCustomerID:    deposit.CustomerID,
		WithdrawalCustomerID: withdrawal.CustomerID,
		Rail:                 deposit.Rail,
		Amount:               deposit.Amount,
		EscrowAmount:         deposit.Amount,
		Status:               MatchPending,
		VerificationCode:     code,
		PaymentDeadline:      now.Add(paymentWindow),
		VerificationDeadline: now.Add(verificationWindow),
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// HasParty reports whether the customer is one of the two sides.
func (m *Match) HasParty(customerID string) bool {
	return customerID == m.DepositCustomerID || customerID == m.WithdrawalCustomerID
}

// MarkPaymentSent records that the depositing customer reports having
// paid the withdrawing customer through the rail.
func (m *Match) MarkPaymentSent(by string) error {
	if m.Status != MatchPending {
		return NewStateViolation("match", m.ID, "payment can only be sent on a pending match")
	}
	if by != m.DepositCustomerID {
		return NewStateViolation("match", m.ID, "only the depositing customer can confirm payment sent")
	}
	now := time.Now().UTC()
	m.Status = MatchPaymentSent
	m.PaymentSentAt = &now
	m.UpdatedAt = now
	return nil
}

// MarkPaymentReceived records that the withdrawing customer confirms the
// transfer arrived.
func (m *Match) MarkPaymentReceived(by string) error {
	if m.Status != MatchPaymentSent {
		return NewStateViolation("match", m.ID, "receipt can only be confirmed after payment is sent")
	}
	if by != m.WithdrawalCustomerID {
		return NewStateViolation("match", m.ID, "only the withdrawing customer can confirm receipt")
	}
	now := time.Now().UTC()
	m.Status = MatchPaymentReceived
	m.PaymentReceivedAt = &now
	m.UpdatedAt = now
	return nil
}

// Verify checks the supplied code and moves the match to verified.
func (m *Match) Verify(by, code string) error {
	if m.Status != MatchPaymentReceived {
		return NewStateViolation("match", m.ID, "verification requires confirmed receipt")
	}
	if !m.HasParty(by) {
		return NewStateViolation("match", m.ID, "only a match party can verify")
	}
	if code != m.VerificationCode {
		return NewStateViolation("match", m.ID, "verification code does not match")
	}
	now := time.Now().UTC()
	m.Status = MatchVerified
	m.VerifiedAt = &now
	m.UpdatedAt = now
	return nil
}

// MarkCompleted closes out a verified match.
func (m *Match) MarkCompleted() error {
	if m.Status != MatchVerified {
		return NewStateViolation("match", m.ID, "only verified matches can be completed")
	}
	now := time.Now().UTC()
	m.Status = MatchCompleted
	m.CompletedAt = &now
	m.UpdatedAt = now
	return nil
}

// RaiseDispute freezes the match for manual review. Either party can
// dispute once a payment has been reported sent.
func (m *Match) RaiseDispute(by, reason string) error {
	if m.Status != MatchPaymentSent && m.Status != MatchPaymentReceived {
		return NewStateViolation("match", m.ID, "disputes require a payment in flight")
	}
	if !m.HasParty(by) {
		return NewStateViolation("match", m.ID, "only a match party can raise a dispute")
	}
	if reason == "" {
		return NewValidationError("reason", "dispute reason is required")
	}
	now := time.Now().UTC()
	m.Status = MatchDisputed
	m.DisputeReason = reason
	m.DisputedBy = by
	m.DisputedAt = &now
	m.UpdatedAt = now
	return nil
}

// MarkCancelled voids a match that missed a deadline. Disputed and
// completed matches are never cancelled automatically.
func (m *Match) MarkCancelled(reason string) error {
	switch m.Status {
	case MatchPending, MatchPaymentSent, MatchPaymentReceived:
	default:
		return NewStateViolation("match", m.ID, "match can no longer be cancelled")
	}
	now := time.Now().UTC()
	m.Status = MatchCancelled
	m.CancelReason = reason
	m.CancelledAt = &now
	m.UpdatedAt = now
	return nil
}

// MarkSettlementRequested records a successful settlement handoff.
func (m *Match) MarkSettlementRequested() error {
	if m.Status != MatchCompleted {
		return NewStateViolation("match", m.ID, "settlement applies to completed matches only")
	}
	m.SettlementStatus = SettlementRequested
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSettlementFailed flags a completed match for manual reconciliation.
func (m *Match) MarkSettlementFailed(errMsg string) error {
	if m.Status != MatchCompleted {
		return NewStateViolation("match", m.ID, "settlement applies to completed matches only")
	}
	m.SettlementStatus = SettlementFailed
	m.SettlementError = errMsg
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal returns true when no automated transition remains. Disputed
// matches resolve through an administrative workflow.
func (m *Match) IsTerminal() bool {
	return m.Status == MatchCompleted || m.Status == MatchCancelled ||
		m.Status == MatchDisputed
}

// PaymentOverdue reports whether the match is still waiting on the peer
// payment past its deadline.
func (m *Match) PaymentOverdue(asOf time.Time) bool {
	return m.Status == MatchPending && asOf.After(m.PaymentDeadline)
}

// VerificationOverdue reports whether the match fell short of completed
// past its verification deadline.
func (m *Match) VerificationOverdue(asOf time.Time) bool {
	switch m.Status {
	case MatchPending, MatchPaymentSent, MatchPaymentReceived:
		return asOf.After(m.VerificationDeadline)
	default:
		return false
	}
}
