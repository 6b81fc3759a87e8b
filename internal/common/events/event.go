package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds correlation and causation IDs
func (e *Event) WithCorrelation(correlationID, causationID string) *Event {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// EventPublisher publishes events to a message broker
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	PublishBatch(ctx context.Context, events []*Event) error
}

// EventHandler handles incoming events
type EventHandler interface {
	Handle(ctx context.Context, event *Event) error
	EventTypes() []string
}

// Common event types
const (
	// Matching lifecycle events consumed by the notification service
	// and the ops dashboard feed.
	EventMatchCreated         = "p2p.match.created"
	EventMatchPaymentSent     = "p2p.match.payment_sent"
	EventMatchPaymentReceived = "p2p.match.payment_received"
	EventMatchCompleted       = "p2p.match.completed"
	EventMatchDisputed        = "p2p.match.disputed"

	// Commands for the settlement service.
	EventSettlementRequested = "settlement.requested"
)

// Event data structures

// MatchEventData is the data carried by p2p.match.* events.
type MatchEventData struct {
	MatchID              string    `json:"match_id"`
	DepositRequestID     string    `json:"deposit_request_id"`
	WithdrawalRequestID  string    `json:"withdrawal_request_id"`
	DepositCustomerID    string    `json:"deposit_customer_id"`
	WithdrawalCustomerID string    `json:"withdrawal_customer_id"`
	Rail                 string    `json:"rail"`
	AmountMinor          int64     `json:"amount_minor"`
	Currency             string    `json:"currency"`
	Status               string    `json:"status"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// MatchDisputedData is the data for p2p.match.disputed events.
type MatchDisputedData struct {
	MatchEventData
	Reason   string `json:"reason"`
	RaisedBy string `json:"raised_by"`
}

// SettlementRequestedData is the data for settlement.requested commands.
type SettlementRequestedData struct {
	MatchID              string    `json:"match_id"`
	DepositCustomerID    string    `json:"deposit_customer_id"`
	WithdrawalCustomerID string    `json:"withdrawal_customer_id"`
	AmountMinor          int64     `json:"amount_minor"`
	Currency             string    `json:"currency"`
	RequestedAt          time.Time `json:"requested_at"`
}
