package p2p

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"betops/internal/p2p/store"
)

// ExpireRequests expires pending requests whose window has lapsed.
// Returns the number expired.
func (s *Service) ExpireRequests(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	requests, err := s.store.ExpiredRequests(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, req := range requests {
		if ctx.Err() != nil {
			break
		}
		if err := req.MarkExpired(); err != nil {
			s.logger.Error("expiring request rejected", "request_id", req.ID, "error", err)
			continue
		}
		if err := s.store.UpdateRequest(ctx, req); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// The request advanced concurrently; the matcher won.
				continue
			}
			s.logger.Error("expiring request failed", "request_id", req.ID, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("requests expired", "count", expired)
	}
	return expired, nil
}

// CancelOverdueMatches cancels matches past their payment or
// verification deadline and voids the linked requests. One failing match
// never blocks the rest of the batch.
func (s *Service) CancelOverdueMatches(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	matches, err := s.store.OverdueMatches(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, match := range matches {
		if ctx.Err() != nil {
			break
		}
		reason := "verification deadline missed"
		if match.PaymentOverdue(now) {
			reason = "payment deadline missed"
		}
		if err := s.cancelMatch(ctx, match, reason); err != nil {
			s.logger.Error("cancelling overdue match failed", "match_id", match.ID, "error", err)
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		s.logger.Info("overdue matches cancelled", "count", cancelled)
	}
	return cancelled, nil
}

// Sweeper drives the periodic matching and deadline passes.
type Sweeper struct {
	svc    *Service
	logger *slog.Logger

	matchRunning  atomic.Bool
	expireRunning atomic.Bool
}

// NewSweeper creates a sweeper over the service's configured intervals.
func NewSweeper(svc *Service, logger *slog.Logger) *Sweeper {
	return &Sweeper{svc: svc, logger: logger}
}

// Run blocks until ctx is cancelled. Each tick runs its pass in the
// background; a tick that fires while the previous pass of the same kind
// is still running is skipped.
func (sw *Sweeper) Run(ctx context.Context) {
	matchTicker := time.NewTicker(sw.svc.cfg.MatchInterval)
	defer matchTicker.Stop()
	expireTicker := time.NewTicker(sw.svc.cfg.ExpireInterval)
	defer expireTicker.Stop()

	sw.logger.Info("sweeper started",
		"match_interval", sw.svc.cfg.MatchInterval,
		"expire_interval", sw.svc.cfg.ExpireInterval,
	)

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("sweeper stopped")
			return
		case <-matchTicker.C:
			go sw.RunMatchPass(ctx)
		case <-expireTicker.C:
			go sw.RunExpirePass(ctx)
		}
	}
}

// RunMatchPass runs one matching pass over all rails unless one is
// already in flight.
func (sw *Sweeper) RunMatchPass(ctx context.Context) {
	if !sw.matchRunning.CompareAndSwap(false, true) {
		sw.logger.Warn("previous matching pass still running, skipping cycle")
		return
	}
	defer sw.matchRunning.Store(false)

	sw.svc.MatchAllRails(ctx)
}

// RunExpirePass runs one deadline pass unless one is already in flight.
func (sw *Sweeper) RunExpirePass(ctx context.Context) {
	if !sw.expireRunning.CompareAndSwap(false, true) {
		sw.logger.Warn("previous deadline pass still running, skipping cycle")
		return
	}
	defer sw.expireRunning.Store(false)

	if _, err := sw.svc.CancelOverdueMatches(ctx); err != nil {
		sw.logger.Error("deadline pass failed", "stage", "matches", "error", err)
	}
	if _, err := sw.svc.ExpireRequests(ctx); err != nil {
		sw.logger.Error("deadline pass failed", "stage", "requests", "error", err)
	}
}
