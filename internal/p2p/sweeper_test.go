package p2p

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"betops/internal/p2p/domain"
	"betops/internal/p2p/store"
)

func TestExpireRequests(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newTestService(t)

	seedRequest(t, st, "d1", "alice", domain.KindDeposit, domain.RailVenmo, 5_000)
	seedRequest(t, st, "d2", "carol", domain.KindDeposit, domain.RailVenmo, 5_000)

	stale, _ := svc.GetRequest(ctx, "d1")
	stale.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if err := st.UpdateRequest(ctx, stale); err != nil {
		t.Fatalf("UpdateRequest failed: %v", err)
	}

	expired, err := svc.ExpireRequests(ctx)
	if err != nil {
		t.Fatalf("ExpireRequests failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}

	d1, _ := svc.GetRequest(ctx, "d1")
	d2, _ := svc.GetRequest(ctx, "d2")
	if d1.Status != domain.RequestExpired {
		t.Errorf("stale request should expire, got %s", d1.Status)
	}
	if d2.Status != domain.RequestPending {
		t.Errorf("fresh request should survive, got %s", d2.Status)
	}
}

func TestExpireRequestsIgnoresMatched(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newTestService(t)
	match := pairVenmo(t, svc, st)

	dep, _ := svc.GetRequest(ctx, "d1")
	dep.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if err := st.UpdateRequest(ctx, dep); err != nil {
		t.Fatalf("UpdateRequest failed: %v", err)
	}

	expired, err := svc.ExpireRequests(ctx)
	if err != nil {
		t.Fatalf("ExpireRequests failed: %v", err)
	}
	if expired != 0 {
		t.Errorf("matched requests never expire, got %d", expired)
	}

	fresh, _ := svc.GetMatch(ctx, match.ID)
	if fresh.Status != domain.MatchPending {
		t.Errorf("match should be untouched, got %s", fresh.Status)
	}
}

func TestExpireRequestsBatchLimit(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.SweepBatchSize = 1
	svc := NewService(st, &fakeNotifier{}, &fakeSettler{}, nil, logger, cfg)

	for _, id := range []string{"d1", "d2", "d3"} {
		seedRequest(t, st, id, "cust-"+id, domain.KindDeposit, domain.RailVenmo, 5_000)
		req, _ := svc.GetRequest(ctx, id)
		req.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		if err := st.UpdateRequest(ctx, req); err != nil {
			t.Fatalf("UpdateRequest failed: %v", err)
		}
	}

	if expired, _ := svc.ExpireRequests(ctx); expired != 1 {
		t.Errorf("batch limit should cap the pass at 1, got %d", expired)
	}
	if expired, _ := svc.ExpireRequests(ctx); expired != 1 {
		t.Errorf("second pass should take the next one, got %d", expired)
	}
}

func TestCancelOverdueMatchesPaymentDeadline(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newTestService(t)
	match := pairVenmo(t, svc, st)

	overdue, _ := svc.GetMatch(ctx, match.ID)
	overdue.PaymentDeadline = time.Now().UTC().Add(-time.Minute)
	if err := st.UpdateMatch(ctx, overdue); err != nil {
		t.Fatalf("UpdateMatch failed: %v", err)
	}

	cancelled, err := svc.CancelOverdueMatches(ctx)
	if err != nil {
		t.Fatalf("CancelOverdueMatches failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled, got %d", cancelled)
	}

	fresh, _ := svc.GetMatch(ctx, match.ID)
	if fresh.Status != domain.MatchCancelled {
		t.Fatalf("expected cancelled, got %s", fresh.Status)
	}
	if fresh.CancelReason != "payment deadline missed" {
		t.Errorf("wrong cancel reason: %q", fresh.CancelReason)
	}

	dep, _ := svc.GetRequest(ctx, "d1")
	wd, _ := svc.GetRequest(ctx, "w1")
	if dep.Status != domain.RequestCancelled || wd.Status != domain.RequestCancelled {
		t.Errorf("overdue cancel must void both requests, got %s / %s", dep.Status, wd.Status)
	}
}

func TestCancelOverdueMatchesVerificationDeadline(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newTestService(t)
	match := pairVenmo(t, svc, st)

	if _, err := svc.ConfirmPaymentSent(ctx, match.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	overdue, _ := svc.GetMatch(ctx, match.ID)
	overdue.VerificationDeadline = time.Now().UTC().Add(-time.Minute)
	if err := st.UpdateMatch(ctx, overdue); err != nil {
		t.Fatalf("UpdateMatch failed: %v", err)
	}

	if cancelled, _ := svc.CancelOverdueMatches(ctx); cancelled != 1 {
		t.Fatal("expected the stalled match to be cancelled")
	}

	fresh, _ := svc.GetMatch(ctx, match.ID)
	if fresh.CancelReason != "verification deadline missed" {
		t.Errorf("wrong cancel reason: %q", fresh.CancelReason)
	}
}

func TestCancelOverdueMatchesSkipsHealthy(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newTestService(t)
	pairVenmo(t, svc, st)

	if cancelled, _ := svc.CancelOverdueMatches(ctx); cancelled != 0 {
		t.Errorf("healthy match cancelled, got %d", cancelled)
	}
}

func TestSweeperSkipsOverlappingPass(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newTestService(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sw := NewSweeper(svc, logger)

	seedRequest(t, st, "d1", "alice", domain.KindDeposit, domain.RailVenmo, 5_000)
	seedRequest(t, st, "w1", "bob", domain.KindWithdrawal, domain.RailVenmo, 5_000)

	sw.matchRunning.Store(true)
	sw.RunMatchPass(ctx)

	dep, _ := svc.GetRequest(ctx, "d1")
	if dep.Status != domain.RequestPending {
		t.Fatalf("pass should have been skipped, got %s", dep.Status)
	}

	sw.matchRunning.Store(false)
	sw.RunMatchPass(ctx)

	dep, _ = svc.GetRequest(ctx, "d1")
	if dep.Status != domain.RequestMatched {
		t.Errorf("expected the rerun pass to pair, got %s", dep.Status)
	}
}
