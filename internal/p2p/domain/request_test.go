package domain

import (
	"testing"
	"time"

	"betops/internal/common/money"
)

func newTestRequest(t *testing.T, id, customerID string, kind RequestKind, amountMinor int64) *PaymentRequest {
	t.Helper()
	req, err := NewPaymentRequest(id, customerID, kind, RailVenmo, money.New(amountMinor, money.USD),
		PaymentDetails{Username: "@" + customerID}, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewPaymentRequest failed: %v", err)
	}
	return req
}

func TestNewPaymentRequest(t *testing.T) {
	req := newTestRequest(t, "req-1", "cust-1", KindDeposit, 5_000)

	if req.Status != RequestPending {
		t.Errorf("expected status pending, got %s", req.Status)
	}
	if req.Priority != PriorityNormal {
		t.Errorf("expected priority normal, got %s", req.Priority)
	}
	if req.Version != 1 {
		t.Errorf("expected version 1, got %d", req.Version)
	}
	if len(req.VerificationCode) != 6 {
		t.Errorf("expected 6-digit verification code, got %q", req.VerificationCode)
	}
	wantExpiry := req.CreatedAt.Add(24 * time.Hour)
	if !req.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected expiry %v, got %v", wantExpiry, req.ExpiresAt)
	}
}

func TestNewPaymentRequestValidation(t *testing.T) {
	details := PaymentDetails{Username: "@someone"}

	tests := []struct {
		name    string
		id      string
		cust    string
		kind    RequestKind
		rail    Rail
		amount  money.Money
		details PaymentDetails
		wantErr bool
	}{
		{"valid", "r1", "c1", KindDeposit, RailVenmo, money.New(5_000, money.USD), details, false},
		{"minimum one dollar accepted", "r2", "c1", KindDeposit, RailVenmo, money.New(100, money.USD), details, false},
		{"fifty cents rejected", "r3", "c1", KindDeposit, RailVenmo, money.New(50, money.USD), details, true},
		{"above venmo max rejected", "r4", "c1", KindDeposit, RailVenmo, money.New(300_000, money.USD), details, true},
		{"venmo max accepted", "r5", "c1", KindDeposit, RailVenmo, money.New(299_900, money.USD), details, false},
		{"missing id", "", "c1", KindDeposit, RailVenmo, money.New(5_000, money.USD), details, true},
		{"missing customer", "r6", "", KindDeposit, RailVenmo, money.New(5_000, money.USD), details, true},
		{"bad kind", "r7", "c1", RequestKind("transfer"), RailVenmo, money.New(5_000, money.USD), details, true},
		{"bad rail", "r8", "c1", KindDeposit, Rail("wire"), money.New(5_000, money.USD), details, true},
		{"unsupported currency", "r9", "c1", KindDeposit, RailVenmo, money.New(5_000, "EUR"), details, true},
		{"missing venmo username", "r10", "c1", KindDeposit, RailVenmo, money.New(5_000, money.USD), PaymentDetails{Email: "a@b.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPaymentRequest(tt.id, tt.cust, tt.kind, tt.rail, tt.amount, tt.details, 24*time.Hour)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && !IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPaymentRequestLifecycle(t *testing.T) {
	req := newTestRequest(t, "req-1", "cust-1", KindDeposit, 5_000)

	if err := req.MarkMatched("match-1", "cust-2"); err != nil {
		t.Fatalf("MarkMatched failed: %v", err)
	}
	if req.Status != RequestMatched {
		t.Errorf("expected status matched, got %s", req.Status)
	}
	if req.MatchID != "match-1" || req.MatchedWith != "cust-2" {
		t.Errorf("match reference not recorded: %q %q", req.MatchID, req.MatchedWith)
	}
	if req.MatchedAt == nil {
		t.Error("expected MatchedAt to be set")
	}

	if err := req.MarkInProgress(); err != nil {
		t.Fatalf("MarkInProgress failed: %v", err)
	}
	if err := req.MarkCompleted(); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if !req.IsTerminal() {
		t.Error("completed request should be terminal")
	}
}

func TestPaymentRequestIllegalTransitions(t *testing.T) {
	t.Run("match twice", func(t *testing.T) {
		req := newTestRequest(t, "r1", "c1", KindDeposit, 5_000)
		if err := req.MarkMatched("m1", "c2"); err != nil {
			t.Fatalf("first MarkMatched failed: %v", err)
		}
		if err := req.MarkMatched("m2", "c3"); !IsStateViolation(err) {
			t.Errorf("expected state violation, got %v", err)
		}
	})

	t.Run("complete before in_progress", func(t *testing.T) {
		req := newTestRequest(t, "r1", "c1", KindDeposit, 5_000)
		if err := req.MarkCompleted(); !IsStateViolation(err) {
			t.Errorf("expected state violation, got %v", err)
		}
	})

	t.Run("expire a matched request", func(t *testing.T) {
		req := newTestRequest(t, "r1", "c1", KindDeposit, 5_000)
		if err := req.MarkMatched("m1", "c2"); err != nil {
			t.Fatalf("MarkMatched failed: %v", err)
		}
		if err := req.MarkExpired(); !IsStateViolation(err) {
			t.Errorf("expected state violation, got %v", err)
		}
	})

	t.Run("cancel a pending request", func(t *testing.T) {
		req := newTestRequest(t, "r1", "c1", KindDeposit, 5_000)
		if err := req.MarkCancelled(); !IsStateViolation(err) {
			t.Errorf("expected state violation, got %v", err)
		}
	})
}

func TestPaymentRequestExpired(t *testing.T) {
	req := newTestRequest(t, "r1", "c1", KindDeposit, 5_000)

	if req.Expired(time.Now().UTC()) {
		t.Error("fresh request should not be expired")
	}
	if !req.Expired(req.ExpiresAt.Add(time.Second)) {
		t.Error("request past its window should be expired")
	}

	if err := req.MarkMatched("m1", "c2"); err != nil {
		t.Fatalf("MarkMatched failed: %v", err)
	}
	if req.Expired(req.ExpiresAt.Add(time.Second)) {
		t.Error("matched request should not report expired")
	}
}

func TestParsePriority(t *testing.T) {
	if p, err := ParsePriority(""); err != nil || p != PriorityNormal {
		t.Errorf("empty priority should default to normal, got %s %v", p, err)
	}
	if p, err := ParsePriority("urgent"); err != nil || p != PriorityUrgent {
		t.Errorf("expected urgent, got %s %v", p, err)
	}
	if _, err := ParsePriority("asap"); !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
