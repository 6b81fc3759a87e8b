package p2p

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"betops/internal/common/events"
	"betops/internal/p2p/domain"
)

// MatchRail runs one matching pass over a single rail. Deposits are
// walked oldest first and each takes the oldest pending withdrawal with
// the exact same amount from a different customer. Returns the number of
// matches created.
func (s *Service) MatchRail(ctx context.Context, rail domain.Rail) (int, error) {
	lock, ok := s.railLocks[rail]
	if !ok {
		return 0, domain.NewValidationError("rail", "unsupported rail")
	}
	lock.Lock()
	defer lock.Unlock()

	deposits, err := s.store.PendingRequests(ctx, rail, domain.KindDeposit)
	if err != nil {
		return 0, fmt.Errorf("loading deposit queue: %w", err)
	}
	if len(deposits) == 0 {
		return 0, nil
	}
	withdrawals, err := s.store.PendingRequests(ctx, rail, domain.KindWithdrawal)
	if err != nil {
		return 0, fmt.Errorf("loading withdrawal queue: %w", err)
	}
	if len(withdrawals) == 0 {
		return 0, nil
	}

	// Bucket withdrawals by amount; each bucket keeps queue order.
	buckets := make(map[int64][]*domain.PaymentRequest)
	for _, wd := range withdrawals {
		buckets[wd.Amount.AmountMinor] = append(buckets[wd.Amount.AmountMinor], wd)
	}

	matched := 0
	for _, dep := range deposits {
		if ctx.Err() != nil {
			break
		}
		bucket := buckets[dep.Amount.AmountMinor]
		idx := -1
		for i, wd := range bucket {
			if wd.CustomerID != dep.CustomerID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		wd := bucket[idx]
		buckets[dep.Amount.AmountMinor] = append(bucket[:idx], bucket[idx+1:]...)

		if err := s.pair(ctx, dep, wd); err != nil {
			// One failed pairing never aborts the pass. Both sides are
			// picked up again next cycle unless a concurrent writer
			// consumed them.
			s.logger.Error("pairing failed",
				"rail", rail,
				"deposit_id", dep.ID,
				"withdrawal_id", wd.ID,
				"error", err,
			)
			continue
		}
		matched++
	}

	if matched > 0 {
		s.logger.Info("matching pass complete", "rail", rail, "matches", matched)
	}
	return matched, nil
}

// MatchAllRails runs a matching pass over every rail. A failing rail
// never blocks the others.
func (s *Service) MatchAllRails(ctx context.Context) int {
	total := 0
	for _, rail := range domain.Rails() {
		if ctx.Err() != nil {
			return total
		}
		n, err := s.MatchRail(ctx, rail)
		if err != nil {
			s.logger.Error("matching pass failed", "rail", rail, "error", err)
			continue
		}
		total += n
	}
	return total
}

// pair builds and persists a match between one deposit and one
// withdrawal. The store rejects the write if either side was taken
// concurrently.
func (s *Service) pair(ctx context.Context, deposit, withdrawal *domain.PaymentRequest) error {
	match, err := domain.NewMatch(ulid.Make().String(), deposit, withdrawal, s.cfg.PaymentWindow, s.cfg.VerificationWindow)
	if err != nil {
		return err
	}
	if err := deposit.MarkMatched(match.ID, withdrawal.CustomerID); err != nil {
		return err
	}
	if err := withdrawal.MarkMatched(match.ID, deposit.CustomerID); err != nil {
		return err
	}

	if err := s.store.CreateMatch(ctx, match, deposit, withdrawal); err != nil {
		return fmt.Errorf("persisting match: %w", err)
	}

	s.logger.Info("match created",
		"match_id", match.ID,
		"rail", match.Rail,
		"amount", match.Amount.AmountMinor,
		"deposit_request_id", deposit.ID,
		"withdrawal_request_id", withdrawal.ID,
	)
	s.notifier.Notify(ctx, events.EventMatchCreated, match)
	return nil
}
