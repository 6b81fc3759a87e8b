package p2p

import (
	"context"
	"fmt"
	"time"

	"betops/internal/common/money"
	"betops/internal/p2p/domain"
	"betops/internal/p2p/store"
)

// RailStats is the per-rail slice of the dashboard picture.
type RailStats struct {
	Rail               domain.Rail `json:"rail"`
	Requests           int64       `json:"requests"`
	PendingDeposits    int64       `json:"pending_deposits"`
	PendingWithdrawals int64       `json:"pending_withdrawals"`
	Matches            int64       `json:"matches"`
	CompletedMatches   int64       `json:"completed_matches"`
	SuccessRate        float64     `json:"success_rate"`
	AverageAmount      money.Money `json:"average_amount"`
	CompletedVolume    money.Money `json:"completed_volume"`
}

// Stats aggregates the operational picture the dashboard polls.
type Stats struct {
	GeneratedAt time.Time `json:"generated_at"`

	TotalRequests      int64 `json:"total_requests"`
	PendingDeposits    int64 `json:"pending_deposits"`
	PendingWithdrawals int64 `json:"pending_withdrawals"`

	TotalMatches     int64 `json:"total_matches"`
	ActiveMatches    int64 `json:"active_matches"`
	CompletedMatches int64 `json:"completed_matches"`
	CancelledMatches int64 `json:"cancelled_matches"`
	DisputedMatches  int64 `json:"disputed_matches"`

	// Completed matches whose settlement handoff failed and needs
	// manual reconciliation.
	SettlementBacklog int64 `json:"settlement_backlog"`

	SuccessRate float64 `json:"success_rate"`

	Rails []RailStats `json:"rails"`
}

// Stats computes the aggregate view across all requests and matches.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	requests, _, err := s.store.ListRequests(ctx, store.RequestFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading requests: %w", err)
	}
	matches, _, err := s.store.ListMatches(ctx, store.MatchFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading matches: %w", err)
	}

	stats := &Stats{GeneratedAt: time.Now().UTC()}

	byRail := make(map[domain.Rail]*RailStats, len(domain.Rails()))
	amounts := make(map[domain.Rail][]money.Money, len(domain.Rails()))
	for _, rail := range domain.Rails() {
		byRail[rail] = &RailStats{Rail: rail, CompletedVolume: money.Zero(money.USD)}
	}

	for _, req := range requests {
		rs, ok := byRail[req.Rail]
		if !ok {
			continue
		}
		stats.TotalRequests++
		rs.Requests++
		amounts[req.Rail] = append(amounts[req.Rail], req.Amount)

		if req.Status == domain.RequestPending {
			switch req.Kind {
			case domain.KindDeposit:
				stats.PendingDeposits++
				rs.PendingDeposits++
			case domain.KindWithdrawal:
				stats.PendingWithdrawals++
				rs.PendingWithdrawals++
			}
		}
	}

	for _, match := range matches {
		rs, ok := byRail[match.Rail]
		if !ok {
			continue
		}
		stats.TotalMatches++
		rs.Matches++

		switch match.Status {
		case domain.MatchCompleted:
			stats.CompletedMatches++
			rs.CompletedMatches++
			rs.CompletedVolume = rs.CompletedVolume.MustAdd(match.Amount)
			if match.SettlementStatus == domain.SettlementFailed {
				stats.SettlementBacklog++
			}
		case domain.MatchCancelled:
			stats.CancelledMatches++
		case domain.MatchDisputed:
			stats.DisputedMatches++
		default:
			stats.ActiveMatches++
		}
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.CompletedMatches) / float64(stats.TotalRequests)
	}

	for _, rail := range domain.Rails() {
		rs := byRail[rail]
		if rs.Requests > 0 {
			rs.SuccessRate = float64(rs.CompletedMatches) / float64(rs.Requests)
			avg, err := money.Average(amounts[rail]...)
			if err == nil {
				rs.AverageAmount = avg
			}
		} else {
			rs.AverageAmount = money.Zero(money.USD)
		}
		stats.Rails = append(stats.Rails, *rs)
	}

	return stats, nil
}
