// Package store persists payment requests and matches and owns the
// per-rail queue views the matching engine consumes.
package store

import (
	"context"
	"time"

	"betops/internal/common/database"
	"betops/internal/p2p/domain"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound      = database.ErrNotFound
	ErrAlreadyExists = database.ErrAlreadyExists
	ErrConflict      = database.ErrConflict
)

// RequestFilter narrows request listings.
type RequestFilter struct {
	CustomerID string
	Status     domain.RequestStatus
	Rail       domain.Rail
	Kind       domain.RequestKind
	Limit      int
	Offset     int
}

// MatchFilter narrows match listings. CustomerID matches either party.
type MatchFilter struct {
	CustomerID       string
	Status           domain.MatchStatus
	Rail             domain.Rail
	SettlementStatus domain.SettlementStatus
	Limit            int
	Offset           int
}

// Store is the persistence port for the matching subsystem.
//
// Update methods use optimistic concurrency: they succeed only when the
// stored version equals the version the caller loaded, and bump it on
// success. A lost race surfaces as ErrConflict with no partial writes.
type Store interface {
	CreateRequest(ctx context.Context, req *domain.PaymentRequest) error
	GetRequest(ctx context.Context, id string) (*domain.PaymentRequest, error)
	UpdateRequest(ctx context.Context, req *domain.PaymentRequest) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]*domain.PaymentRequest, int64, error)

	// PendingRequests returns one side of a rail's queue in strict
	// first-in-first-out order.
	PendingRequests(ctx context.Context, rail domain.Rail, kind domain.RequestKind) ([]*domain.PaymentRequest, error)

	// ExpiredRequests returns pending requests past their expiry.
	ExpiredRequests(ctx context.Context, asOf time.Time, limit int) ([]*domain.PaymentRequest, error)

	// CreateMatch inserts the match and persists both requests'
	// pending-to-matched transition in one atomic step. If either side
	// is no longer pending, nothing is written and ErrConflict is
	// returned. A request therefore participates in at most one match.
	CreateMatch(ctx context.Context, match *domain.Match, deposit, withdrawal *domain.PaymentRequest) error

	GetMatch(ctx context.Context, id string) (*domain.Match, error)

	// UpdateMatch persists a match transition together with any linked
	// request transitions in one atomic step.
	UpdateMatch(ctx context.Context, match *domain.Match, requests ...*domain.PaymentRequest) error

	ListMatches(ctx context.Context, filter MatchFilter) ([]*domain.Match, int64, error)

	// OverdueMatches returns matches past their payment or verification
	// deadline that automated cancellation still applies to.
	OverdueMatches(ctx context.Context, asOf time.Time, limit int) ([]*domain.Match, error)
}
