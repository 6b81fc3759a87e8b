package domain

import (
	"testing"
	"time"

	"betops/internal/common/money"
)

func newTestPair(t *testing.T, amountMinor int64) (*PaymentRequest, *PaymentRequest) {
	t.Helper()
	dep := newTestRequest(t, "dep-1", "alice", KindDeposit, amountMinor)
	wd := newTestRequest(t, "wd-1", "bob", KindWithdrawal, amountMinor)
	return dep, wd
}

func newTestMatch(t *testing.T) *Match {
	t.Helper()
	dep, wd := newTestPair(t, 5_000)
	m, err := NewMatch("match-1", dep, wd, 30*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewMatch failed: %v", err)
	}
	return m
}

func TestNewMatch(t *testing.T) {
	dep, wd := newTestPair(t, 5_000)
	m, err := NewMatch("match-1", dep, wd, 30*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewMatch failed: %v", err)
	}

	if m.Status != MatchPending {
		t.Errorf("expected status pending, got %s", m.Status)
	}
	if m.DepositCustomerID != "alice" || m.WithdrawalCustomerID != "bob" {
		t.Errorf("parties not recorded: %s %s", m.DepositCustomerID, m.WithdrawalCustomerID)
	}
	if !m.Amount.Equal(money.New(5_000, money.USD)) {
		t.Errorf("expected amount 5000, got %d", m.Amount.AmountMinor)
	}
	if !m.EscrowAmount.Equal(m.Amount) {
		t.Error("escrow amount should mirror the match amount")
	}
	if len(m.VerificationCode) != 6 {
		t.Errorf("expected 6-digit code, got %q", m.VerificationCode)
	}
	wantPayment := m.CreatedAt.Add(30 * time.Minute)
	if !m.PaymentDeadline.Equal(wantPayment) {
		t.Errorf("expected payment deadline %v, got %v", wantPayment, m.PaymentDeadline)
	}
	wantVerification := m.CreatedAt.Add(time.Hour)
	if !m.VerificationDeadline.Equal(wantVerification) {
		t.Errorf("expected verification deadline %v, got %v", wantVerification, m.VerificationDeadline)
	}
}

func TestNewMatchInvariants(t *testing.T) {
	t.Run("same customer on both sides", func(t *testing.T) {
		dep := newTestRequest(t, "dep-1", "alice", KindDeposit, 5_000)
		wd := newTestRequest(t, "wd-1", "alice", KindWithdrawal, 5_000)
		if _, err := NewMatch("m1", dep, wd, time.Minute, time.Hour); !IsInvariantViolation(err) {
			t.Errorf("expected invariant violation, got %v", err)
		}
	})

	t.Run("amount mismatch", func(t *testing.T) {
		dep := newTestRequest(t, "dep-1", "alice", KindDeposit, 5_000)
		wd := newTestRequest(t, "wd-1", "bob", KindWithdrawal, 6_000)
		if _, err := NewMatch("m1", dep, wd, time.Minute, time.Hour); !IsInvariantViolation(err) {
			t.Errorf("expected invariant violation, got %v", err)
		}
	})

	t.Run("rail mismatch", func(t *testing.T) {
		dep := newTestRequest(t, "dep-1", "alice", KindDeposit, 5_000)
		wd, err := NewPaymentRequest("wd-1", "bob", KindWithdrawal, RailCashApp,
			money.New(5_000, money.USD), PaymentDetails{Username: "$bob"}, 24*time.Hour)
		if err != nil {
			t.Fatalf("NewPaymentRequest failed: %v", err)
		}
		if _, err := NewMatch("m1", dep, wd, time.Minute, time.Hour); !IsInvariantViolation(err) {
			t.Errorf("expected invariant violation, got %v", err)
		}
	})

	t.Run("sides swapped", func(t *testing.T) {
		dep, wd := newTestPair(t, 5_000)
		if _, err := NewMatch("m1", wd, dep, time.Minute, time.Hour); !IsInvariantViolation(err) {
			t.Errorf("expected invariant violation, got %v", err)
		}
	})

	t.Run("consumed request", func(t *testing.T) {
		dep, wd := newTestPair(t, 5_000)
		if err := dep.MarkMatched("other", "bob"); err != nil {
			t.Fatalf("MarkMatched failed: %v", err)
		}
		if _, err := NewMatch("m1", dep, wd, time.Minute, time.Hour); !IsInvariantViolation(err) {
			t.Errorf("expected invariant violation, got %v", err)
		}
	})
}

func TestMatchLifecycle(t *testing.T) {
	m := newTestMatch(t)

	if err := m.MarkPaymentSent("alice"); err != nil {
		t.Fatalf("MarkPaymentSent failed: %v", err)
	}
	if m.Status != MatchPaymentSent || m.PaymentSentAt == nil {
		t.Errorf("payment sent not recorded: %s", m.Status)
	}

	if err := m.MarkPaymentReceived("bob"); err != nil {
		t.Fatalf("MarkPaymentReceived failed: %v", err)
	}
	if m.Status != MatchPaymentReceived || m.PaymentReceivedAt == nil {
		t.Errorf("payment received not recorded: %s", m.Status)
	}

	if err := m.Verify("bob", m.VerificationCode); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if m.Status != MatchVerified || m.VerifiedAt == nil {
		t.Errorf("verification not recorded: %s", m.Status)
	}

	if err := m.MarkCompleted(); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if m.Status != MatchCompleted || m.CompletedAt == nil {
		t.Errorf("completion not recorded: %s", m.Status)
	}
	if !m.IsTerminal() {
		t.Error("completed match should be terminal")
	}
}

func TestMatchRoleGuards(t *testing.T) {
	t.Run("withdrawer cannot confirm sent", func(t *testing.T) {
		m := newTestMatch(t)
		if err := m.MarkPaymentSent("bob"); !IsStateViolation(err) {
			t.Errorf("expected state violation, got %v", err)
		}
	})

	t.Run("depositor cannot confirm receipt", func(t *testing.T) {
		m := newTestMatch(t)
		if err := m.MarkPaymentSent("alice"); err != nil {
			t.Fatalf("MarkPaymentSent failed: %v", err)
		}
		if err := m.MarkPaymentReceived("alice"); !IsStateViolation(err) {
			t.Errorf("expected state violation, got %v", err)
		}
	})

	t.Run("outsider cannot verify", func(t *testing.T) {
		m := newTestMatch(t)
		if err := m.MarkPaymentSent("alice"); err != nil {
			t.Fatal(err)
		}
		if err := m.MarkPaymentReceived("bob"); err != nil {
			t.Fatal(err)
		}
		if err := m.Verify("mallory", m.VerificationCode); !IsStateViolation(err) {
			t.Errorf("expected state violation, got %v", err)
		}
	})
}

func TestMatchVerify(t *testing.T) {
	t.Run("wrong code", func(t *testing.T) {
		m := newTestMatch(t)
		if err := m.MarkPaymentSent("alice"); err != nil {
			t.Fatal(err)
		}
		if err := m.MarkPaymentReceived("bob"); err != nil {
			t.Fatal(err)
		}
		if err := m.Verify("bob", "000000"); !IsStateViolation(err) {
			t.Errorf("expected state violation for wrong code, got %v", err)
		}
		if m.Status != MatchPaymentReceived {
			t.Errorf("wrong code must not change status, got %s", m.Status)
		}
	})

	t.Run("before receipt", func(t *testing.T) {
		m := newTestMatch(t)
		if err := m.Verify("bob", m.VerificationCode); !IsStateViolation(err) {
			t.Errorf("expected state violation, got %v", err)
		}
	})
}

func TestMatchDispute(t *testing.T) {
	m := newTestMatch(t)

	if err := m.RaiseDispute("bob", "no transfer arrived"); !IsStateViolation(err) {
		t.Errorf("dispute before payment sent should be rejected, got %v", err)
	}

	if err := m.MarkPaymentSent("alice"); err != nil {
		t.Fatal(err)
	}

	if err := m.RaiseDispute("bob", ""); !IsValidation(err) {
		t.Errorf("empty reason should be a validation error, got %v", err)
	}
	if err := m.RaiseDispute("mallory", "looks wrong"); !IsStateViolation(err) {
		t.Errorf("outsider dispute should be rejected, got %v", err)
	}

	if err := m.RaiseDispute("bob", "no transfer arrived"); err != nil {
		t.Fatalf("RaiseDispute failed: %v", err)
	}
	if m.Status != MatchDisputed || m.DisputedAt == nil {
		t.Errorf("dispute not recorded: %s", m.Status)
	}
	if m.DisputedBy != "bob" || m.DisputeReason != "no transfer arrived" {
		t.Errorf("dispute fields not recorded: %q %q", m.DisputedBy, m.DisputeReason)
	}
	if !m.IsTerminal() {
		t.Error("disputed match should be terminal for automation")
	}

	if err := m.MarkCancelled("deadline"); !IsStateViolation(err) {
		t.Errorf("disputed match must not be cancelled, got %v", err)
	}
}

func TestMatchCancel(t *testing.T) {
	m := newTestMatch(t)

	if err := m.MarkCancelled("payment deadline missed"); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}
	if m.Status != MatchCancelled || m.CancelledAt == nil {
		t.Errorf("cancellation not recorded: %s", m.Status)
	}
	if m.CancelReason != "payment deadline missed" {
		t.Errorf("cancel reason not recorded: %q", m.CancelReason)
	}

	if err := m.MarkCancelled("again"); !IsStateViolation(err) {
		t.Errorf("cancelled match must not be cancelled again, got %v", err)
	}
}

func TestMatchSettlementMarks(t *testing.T) {
	m := newTestMatch(t)

	if err := m.MarkSettlementRequested(); !IsStateViolation(err) {
		t.Errorf("settlement before completion should be rejected, got %v", err)
	}

	if err := m.MarkPaymentSent("alice"); err != nil {
		t.Fatal(err)
	}
	if err := m.MarkPaymentReceived("bob"); err != nil {
		t.Fatal(err)
	}
	if err := m.Verify("alice", m.VerificationCode); err != nil {
		t.Fatal(err)
	}
	if err := m.MarkCompleted(); err != nil {
		t.Fatal(err)
	}

	if err := m.MarkSettlementFailed("broker unavailable"); err != nil {
		t.Fatalf("MarkSettlementFailed failed: %v", err)
	}
	if m.Status != MatchCompleted {
		t.Errorf("settlement failure must not change match status, got %s", m.Status)
	}
	if m.SettlementStatus != SettlementFailed || m.SettlementError != "broker unavailable" {
		t.Errorf("settlement failure not recorded: %s %q", m.SettlementStatus, m.SettlementError)
	}
}

func TestMatchOverduePredicates(t *testing.T) {
	m := newTestMatch(t)

	if m.PaymentOverdue(m.CreatedAt) {
		t.Error("fresh match should not be payment overdue")
	}
	if !m.PaymentOverdue(m.PaymentDeadline.Add(time.Second)) {
		t.Error("pending match past payment deadline should be overdue")
	}

	if err := m.MarkPaymentSent("alice"); err != nil {
		t.Fatal(err)
	}
	if m.PaymentOverdue(m.PaymentDeadline.Add(time.Second)) {
		t.Error("payment_sent match is no longer payment overdue")
	}
	if !m.VerificationOverdue(m.VerificationDeadline.Add(time.Second)) {
		t.Error("payment_sent match past verification deadline should be overdue")
	}

	if err := m.MarkPaymentReceived("bob"); err != nil {
		t.Fatal(err)
	}
	if err := m.Verify("bob", m.VerificationCode); err != nil {
		t.Fatal(err)
	}
	if err := m.MarkCompleted(); err != nil {
		t.Fatal(err)
	}
	if m.VerificationOverdue(m.VerificationDeadline.Add(time.Hour)) {
		t.Error("completed match should never be overdue")
	}
}
