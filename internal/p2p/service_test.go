package p2p

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"betops/internal/common/money"
	"betops/internal/p2p/domain"
	"betops/internal/p2p/store"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, eventType string, _ *domain.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type fakeSettler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSettler) Settle(_ context.Context, _ *domain.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeSettler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeIdentity struct {
	known map[string]bool
	err   error
}

func (f *fakeIdentity) Exists(_ context.Context, customerID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.known[customerID], nil
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *fakeNotifier, *fakeSettler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	notifier := &fakeNotifier{}
	settler := &fakeSettler{}
	svc := NewService(st, notifier, settler, nil, logger, DefaultConfig())
	return svc, st, notifier, settler
}

// seedRequest stores a pending request directly, bypassing the immediate
// pairing attempt SubmitRequest makes.
func seedRequest(t *testing.T, st store.Store, id, customer string, kind domain.RequestKind, rail domain.Rail, amountMinor int64) *domain.PaymentRequest {
	t.Helper()
	req, err := domain.NewPaymentRequest(id, customer, kind, rail, money.New(amountMinor, money.USD),
		domain.PaymentDetails{Username: "@" + customer, Email: customer + "@example.com", Phone: "+15550100"},
		24*time.Hour)
	if err != nil {
		t.Fatalf("NewPaymentRequest failed: %v", err)
	}
	if err := st.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	return req
}

func submitInput(customer string, kind domain.RequestKind, amountMinor int64) SubmitRequestInput {
	return SubmitRequestInput{
		CustomerID: customer,
		Kind:       kind,
		Rail:       domain.RailVenmo,
		Amount:     money.New(amountMinor, money.USD),
		Details:    domain.PaymentDetails{Username: "@" + customer},
	}
}

func TestSubmitRequest(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier, _ := newTestService(t)

	req, err := svc.SubmitRequest(ctx, submitInput("alice", domain.KindDeposit, 5_000))
	if err != nil {
		t.Fatalf("SubmitRequest failed: %v", err)
	}
	if req.Status != domain.RequestPending {
		t.Errorf("lone request should stay pending, got %s", req.Status)
	}
	if len(notifier.sent()) != 0 {
		t.Errorf("no events expected yet, got %v", notifier.sent())
	}
}

func TestSubmitRequestMatchesImmediately(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier, _ := newTestService(t)

	dep, err := svc.SubmitRequest(ctx, submitInput("alice", domain.KindDeposit, 5_000))
	if err != nil {
		t.Fatal(err)
	}

	wd, err := svc.SubmitRequest(ctx, submitInput("bob", domain.KindWithdrawal, 5_000))
	if err != nil {
		t.Fatal(err)
	}

	if wd.Status != domain.RequestMatched {
		t.Errorf("second side should match immediately, got %s", wd.Status)
	}
	if wd.MatchedWith != "alice" {
		t.Errorf("expected counterparty alice, got %s", wd.MatchedWith)
	}

	depNow, err := svc.GetRequest(ctx, dep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if depNow.Status != domain.RequestMatched || depNow.MatchID != wd.MatchID {
		t.Errorf("deposit side not consumed: %s %s", depNow.Status, depNow.MatchID)
	}

	match, err := svc.GetMatch(ctx, wd.MatchID)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if match.DepositCustomerID != "alice" || match.WithdrawalCustomerID != "bob" {
		t.Errorf("match parties wrong: %s %s", match.DepositCustomerID, match.WithdrawalCustomerID)
	}
	if !match.Amount.Equal(money.New(5_000, money.USD)) {
		t.Errorf("match amount wrong: %d", match.Amount.AmountMinor)
	}

	events := notifier.sent()
	if len(events) != 1 || events[0] != "p2p.match.created" {
		t.Errorf("expected one match.created event, got %v", events)
	}
}

func TestSubmitRequestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	if _, err := svc.SubmitRequest(ctx, submitInput("alice", domain.KindDeposit, 50)); !domain.IsValidation(err) {
		t.Errorf("fifty cents should be rejected, got %v", err)
	}

	in := submitInput("alice", domain.KindDeposit, 5_000)
	in.Priority = "asap"
	if _, err := svc.SubmitRequest(ctx, in); !domain.IsValidation(err) {
		t.Errorf("bad priority should be rejected, got %v", err)
	}

	in = submitInput("alice", domain.KindDeposit, 5_000)
	in.Priority = "urgent"
	in.Notes = "VIP"
	req, err := svc.SubmitRequest(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if req.Priority != domain.PriorityUrgent || req.Notes != "VIP" {
		t.Errorf("priority/notes not carried: %s %q", req.Priority, req.Notes)
	}
}

func TestSubmitRequestIdentityCheck(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	identity := &fakeIdentity{known: map[string]bool{"alice": true}}
	svc := NewService(st, &fakeNotifier{}, &fakeSettler{}, identity, logger, DefaultConfig())

	if _, err := svc.SubmitRequest(ctx, submitInput("alice", domain.KindDeposit, 5_000)); err != nil {
		t.Errorf("known customer rejected: %v", err)
	}

	if _, err := svc.SubmitRequest(ctx, submitInput("mallory", domain.KindDeposit, 5_000)); !domain.IsValidation(err) {
		t.Errorf("unknown customer should be a validation error, got %v", err)
	}

	identity.err = errors.New("platform down")
	if _, err := svc.SubmitRequest(ctx, submitInput("alice", domain.KindDeposit, 5_000)); err == nil || domain.IsValidation(err) {
		t.Errorf("checker outage should surface as internal error, got %v", err)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.GetRequest(context.Background(), "missing"); !domain.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
	if _, err := svc.GetMatch(context.Background(), "missing"); !domain.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}
