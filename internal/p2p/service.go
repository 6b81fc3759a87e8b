// Package p2p implements the peer-to-peer payment matching engine behind
// the sportsbook's deposit and withdrawal flows. Deposits fund the book
// by paying a withdrawing customer directly over a consumer payment app;
// the engine pairs the two sides, walks the match through its lifecycle,
// and hands completed matches to settlement.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"betops/internal/common/money"
	"betops/internal/p2p/domain"
	"betops/internal/p2p/store"
)

// Config holds matching parameters.
type Config struct {
	RequestTTL         time.Duration `envconfig:"P2P_REQUEST_TTL" default:"24h"`
	PaymentWindow      time.Duration `envconfig:"P2P_PAYMENT_WINDOW" default:"30m"`
	VerificationWindow time.Duration `envconfig:"P2P_VERIFICATION_WINDOW" default:"1h"`
	MatchInterval      time.Duration `envconfig:"P2P_MATCH_INTERVAL" default:"30s"`
	ExpireInterval     time.Duration `envconfig:"P2P_EXPIRE_INTERVAL" default:"1m"`
	SweepBatchSize     int           `envconfig:"P2P_SWEEP_BATCH_SIZE" default:"500"`
}

// DefaultConfig returns the operational windows the book runs with.
func DefaultConfig() Config {
	return Config{
		RequestTTL:         24 * time.Hour,
		PaymentWindow:      30 * time.Minute,
		VerificationWindow: time.Hour,
		MatchInterval:      30 * time.Second,
		ExpireInterval:     time.Minute,
		SweepBatchSize:     500,
	}
}

// Notifier emits match lifecycle events for the notification service and
// the ops dashboard. Delivery is fire and forget: implementations log
// failures and never block the calling operation on retries.
type Notifier interface {
	Notify(ctx context.Context, eventType string, match *domain.Match)
}

// Settler hands a completed match to the settlement service, which
// credits the depositing customer's balance and debits the withdrawing
// customer's. Money movement stays outside this subsystem.
type Settler interface {
	Settle(ctx context.Context, match *domain.Match) error
}

// IdentityChecker reports whether a customer exists on the platform.
// Optional; a nil checker disables the check.
type IdentityChecker interface {
	Exists(ctx context.Context, customerID string) (bool, error)
}

// Service orchestrates request intake, matching, and match lifecycle.
type Service struct {
	store    store.Store
	notifier Notifier
	settler  Settler
	identity IdentityChecker
	logger   *slog.Logger
	cfg      Config

	// One lock per rail serializes matching passes so a request is
	// only ever considered by one pass at a time.
	railLocks map[domain.Rail]*sync.Mutex
}

// NewService creates a new matching service.
func NewService(st store.Store, notifier Notifier, settler Settler, identity IdentityChecker, logger *slog.Logger, cfg Config) *Service {
	locks := make(map[domain.Rail]*sync.Mutex, len(domain.Rails()))
	for _, rail := range domain.Rails() {
		locks[rail] = &sync.Mutex{}
	}
	return &Service{
		store:     st,
		notifier:  notifier,
		settler:   settler,
		identity:  identity,
		logger:    logger,
		cfg:       cfg,
		railLocks: locks,
	}
}

// SubmitRequestInput carries a new request's fields.
type SubmitRequestInput struct {
	CustomerID string
	Kind       domain.RequestKind
	Rail       domain.Rail
	Amount     money.Money
	Details    domain.PaymentDetails
	Priority   string
	Notes      string
}

// SubmitRequest validates and registers a payment request, then tries to
// pair it immediately. A failed pairing attempt never fails the submit;
// the request stays queued for the next sweep.
func (s *Service) SubmitRequest(ctx context.Context, in SubmitRequestInput) (*domain.PaymentRequest, error) {
	if s.identity != nil {
		exists, err := s.identity.Exists(ctx, in.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("checking customer identity: %w", err)
		}
		if !exists {
			return nil, domain.NewValidationError("customer_id", "unknown customer")
		}
	}

	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}

	req, err := domain.NewPaymentRequest(
		ulid.Make().String(),
		in.CustomerID,
		in.Kind,
		in.Rail,
		in.Amount,
		in.Details,
		s.cfg.RequestTTL,
	)
	if err != nil {
		return nil, err
	}
	req.Priority = priority
	req.Notes = in.Notes

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("storing request: %w", err)
	}

	s.logger.Info("payment request submitted",
		"request_id", req.ID,
		"customer_id", req.CustomerID,
		"kind", req.Kind,
		"rail", req.Rail,
		"amount", req.Amount.AmountMinor,
	)

	if _, err := s.MatchRail(ctx, req.Rail); err != nil {
		s.logger.Error("immediate matching attempt failed", "rail", req.Rail, "error", err)
	}

	// The immediate attempt may have consumed the request; return its
	// current state.
	fresh, err := s.store.GetRequest(ctx, req.ID)
	if err != nil {
		return req, nil
	}
	return fresh, nil
}

// GetRequest retrieves a payment request.
func (s *Service) GetRequest(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NewNotFoundError("payment_request", id)
		}
		return nil, fmt.Errorf("loading request: %w", err)
	}
	return req, nil
}

// ListRequests returns requests matching the filter plus the unpaged total.
func (s *Service) ListRequests(ctx context.Context, filter store.RequestFilter) ([]*domain.PaymentRequest, int64, error) {
	return s.store.ListRequests(ctx, filter)
}

// GetMatch retrieves a match.
func (s *Service) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	match, err := s.store.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NewNotFoundError("match", id)
		}
		return nil, fmt.Errorf("loading match: %w", err)
	}
	return match, nil
}

// ListMatches returns matches matching the filter plus the unpaged total.
func (s *Service) ListMatches(ctx context.Context, filter store.MatchFilter) ([]*domain.Match, int64, error) {
	return s.store.ListMatches(ctx, filter)
}

// matchRequests loads both sides of a match.
func (s *Service) matchRequests(ctx context.Context, match *domain.Match) (deposit, withdrawal *domain.PaymentRequest, err error) {
	deposit, err = s.store.GetRequest(ctx, match.DepositRequestID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading deposit request %s: %w", match.DepositRequestID, err)
	}
	withdrawal, err = s.store.GetRequest(ctx, match.WithdrawalRequestID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading withdrawal request %s: %w", match.WithdrawalRequestID, err)
	}
	return deposit, withdrawal, nil
}

// mapConflict translates a lost optimistic-concurrency race into the
// state violation the caller sees.
func mapConflict(err error, entity, id string) error {
	if errors.Is(err, store.ErrConflict) {
		return domain.NewStateViolation(entity, id, "state changed concurrently, retry")
	}
	return err
}
