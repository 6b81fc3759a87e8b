package p2p

import (
	"context"
	"log/slog"

	"betops/internal/common/events"
	"betops/internal/p2p/domain"
)

// NATSNotifier publishes match lifecycle events to JetStream. Publish
// failures are logged and swallowed so a broker outage never fails a
// customer operation.
type NATSNotifier struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

// NewNATSNotifier creates a notifier over the given publisher.
func NewNATSNotifier(publisher events.EventPublisher, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{publisher: publisher, logger: logger}
}

// Notify implements Notifier.
func (n *NATSNotifier) Notify(ctx context.Context, eventType string, match *domain.Match) {
	var payload any = matchEventData(match)
	if eventType == events.EventMatchDisputed {
		payload = events.MatchDisputedData{
			MatchEventData: matchEventData(match),
			Reason:         match.DisputeReason,
			RaisedBy:       match.DisputedBy,
		}
	}

	event, err := events.NewEvent(eventType, "p2p_match", match.ID, payload)
	if err != nil {
		n.logger.Error("building lifecycle event failed", "type", eventType, "match_id", match.ID, "error", err)
		return
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.Error("publishing lifecycle event failed", "type", eventType, "match_id", match.ID, "error", err)
	}
}

func matchEventData(match *domain.Match) events.MatchEventData {
	return events.MatchEventData{
		MatchID:              match.ID,
		DepositRequestID:     match.DepositRequestID,
		WithdrawalRequestID:  match.WithdrawalRequestID,
		DepositCustomerID:    match.DepositCustomerID,
		WithdrawalCustomerID: match.WithdrawalCustomerID,
		Rail:                 string(match.Rail),
		AmountMinor:          match.Amount.AmountMinor,
		Currency:             string(match.Amount.Currency),
		Status:               string(match.Status),
		OccurredAt:           match.UpdatedAt,
	}
}
