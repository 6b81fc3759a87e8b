package p2p

import (
	"context"

	"betops/internal/common/events"
	"betops/internal/p2p/domain"
)

// ConfirmPaymentSent records that the depositing customer reports having
// sent the payment. Both linked requests move to in_progress in the same
// write.
func (s *Service) ConfirmPaymentSent(ctx context.Context, matchID, customerID string) (*domain.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := match.MarkPaymentSent(customerID); err != nil {
		return nil, err
	}

	deposit, withdrawal, err := s.matchRequests(ctx, match)
	if err != nil {
		return nil, err
	}
	if err := deposit.MarkInProgress(); err != nil {
		return nil, err
	}
	if err := withdrawal.MarkInProgress(); err != nil {
		return nil, err
	}

	if err := s.store.UpdateMatch(ctx, match, deposit, withdrawal); err != nil {
		return nil, mapConflict(err, "match", matchID)
	}

	s.logger.Info("payment reported sent", "match_id", match.ID, "customer_id", customerID)
	s.notifier.Notify(ctx, events.EventMatchPaymentSent, match)
	return match, nil
}

// ConfirmPaymentReceived records that the withdrawing customer reports
// the payment arrived.
func (s *Service) ConfirmPaymentReceived(ctx context.Context, matchID, customerID string) (*domain.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := match.MarkPaymentReceived(customerID); err != nil {
		return nil, err
	}

	if err := s.store.UpdateMatch(ctx, match); err != nil {
		return nil, mapConflict(err, "match", matchID)
	}

	s.logger.Info("payment reported received", "match_id", match.ID, "customer_id", customerID)
	s.notifier.Notify(ctx, events.EventMatchPaymentReceived, match)
	return match, nil
}

// VerifyAndComplete checks the verification code, completes the match
// and both requests, and hands the match to settlement. Settlement runs
// exactly once, after completion is durable; a failed handoff flags the
// match for manual reconciliation but the match stays completed.
func (s *Service) VerifyAndComplete(ctx context.Context, matchID, customerID, code string) (*domain.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := match.Verify(customerID, code); err != nil {
		return nil, err
	}
	if err := match.MarkCompleted(); err != nil {
		return nil, err
	}

	deposit, withdrawal, err := s.matchRequests(ctx, match)
	if err != nil {
		return nil, err
	}
	if err := deposit.MarkCompleted(); err != nil {
		return nil, err
	}
	if err := withdrawal.MarkCompleted(); err != nil {
		return nil, err
	}

	if err := s.store.UpdateMatch(ctx, match, deposit, withdrawal); err != nil {
		return nil, mapConflict(err, "match", matchID)
	}

	s.logger.Info("match completed",
		"match_id", match.ID,
		"rail", match.Rail,
		"amount", match.Amount.AmountMinor,
		"verified_by", customerID,
	)

	s.requestSettlement(ctx, match)

	s.notifier.Notify(ctx, events.EventMatchCompleted, match)
	return match, nil
}

// requestSettlement hands the completed match to the settler and records
// the outcome on the match.
func (s *Service) requestSettlement(ctx context.Context, match *domain.Match) {
	if err := s.settler.Settle(ctx, match); err != nil {
		serr := &domain.SettlementError{MatchID: match.ID, Err: err}
		s.logger.Error("settlement handoff failed", "match_id", match.ID, "error", serr)
		if merr := match.MarkSettlementFailed(err.Error()); merr != nil {
			s.logger.Error("recording settlement failure rejected", "match_id", match.ID, "error", merr)
			return
		}
	} else {
		if merr := match.MarkSettlementRequested(); merr != nil {
			s.logger.Error("recording settlement handoff rejected", "match_id", match.ID, "error", merr)
			return
		}
	}
	if err := s.store.UpdateMatch(ctx, match); err != nil {
		s.logger.Error("persisting settlement status failed", "match_id", match.ID, "error", err)
	}
}

// RaiseDispute freezes a match for manual review. The linked requests
// stay in_progress until an operator resolves the dispute out of band.
func (s *Service) RaiseDispute(ctx context.Context, matchID, customerID, reason string) (*domain.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := match.RaiseDispute(customerID, reason); err != nil {
		return nil, err
	}

	if err := s.store.UpdateMatch(ctx, match); err != nil {
		return nil, mapConflict(err, "match", matchID)
	}

	s.logger.Warn("dispute raised",
		"match_id", match.ID,
		"raised_by", customerID,
		"reason", reason,
	)
	s.notifier.Notify(ctx, events.EventMatchDisputed, match)
	return match, nil
}

// CancelMatch voids a match and both linked requests. Used by the
// deadline sweeps; requests tied to a dead match are never re-queued.
func (s *Service) CancelMatch(ctx context.Context, matchID, reason string) (*domain.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.cancelMatch(ctx, match, reason); err != nil {
		return nil, err
	}
	return match, nil
}

func (s *Service) cancelMatch(ctx context.Context, match *domain.Match, reason string) error {
	if err := match.MarkCancelled(reason); err != nil {
		return err
	}

	deposit, withdrawal, err := s.matchRequests(ctx, match)
	if err != nil {
		return err
	}
	if err := deposit.MarkCancelled(); err != nil {
		return err
	}
	if err := withdrawal.MarkCancelled(); err != nil {
		return err
	}

	if err := s.store.UpdateMatch(ctx, match, deposit, withdrawal); err != nil {
		return mapConflict(err, "match", match.ID)
	}

	s.logger.Info("match cancelled", "match_id", match.ID, "reason", reason)
	return nil
}
