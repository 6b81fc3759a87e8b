package p2p

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"betops/internal/common/events"
	"betops/internal/p2p/domain"
)

// NATSSettler publishes settlement commands to JetStream. The settlement
// service consumes them and owns the actual balance movements.
type NATSSettler struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

// NewNATSSettler creates a settler over the given publisher.
func NewNATSSettler(publisher events.EventPublisher, logger *slog.Logger) *NATSSettler {
	return &NATSSettler{publisher: publisher, logger: logger}
}

// Settle implements Settler.
func (n *NATSSettler) Settle(ctx context.Context, match *domain.Match) error {
	data := events.SettlementRequestedData{
		MatchID:              match.ID,
		DepositCustomerID:    match.DepositCustomerID,
		WithdrawalCustomerID: match.WithdrawalCustomerID,
		AmountMinor:          match.Amount.AmountMinor,
		Currency:             string(match.Amount.Currency),
		RequestedAt:          time.Now().UTC(),
	}

	event, err := events.NewEvent(events.EventSettlementRequested, "p2p_match", match.ID, data)
	if err != nil {
		return fmt.Errorf("building settlement command: %w", err)
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publishing settlement command: %w", err)
	}

	n.logger.Info("settlement requested",
		"match_id", match.ID,
		"amount", match.Amount.AmountMinor,
		"deposit_customer_id", match.DepositCustomerID,
		"withdrawal_customer_id", match.WithdrawalCustomerID,
	)
	return nil
}
