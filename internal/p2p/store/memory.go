package store

import (
	"context"
	"sync"
	"time"

	"betops/internal/p2p/domain"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It mirrors the transactional guarantees of the Postgres store under a
// single mutex.
type MemoryStore struct {
	mu           sync.RWMutex
	requests     map[string]*domain.PaymentRequest
	matches      map[string]*domain.Match
	requestOrder []string
	matchOrder   []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*domain.PaymentRequest),
		matches:  make(map[string]*domain.Match),
	}
}

// Entities are copied on the way in and out so callers never share
// memory with stored state.
func cloneRequest(r *domain.PaymentRequest) *domain.PaymentRequest {
	c := *r
	return &c
}

func cloneMatch(m *domain.Match) *domain.Match {
	c := *m
	return &c
}

// CreateRequest inserts a new request.
func (s *MemoryStore) CreateRequest(_ context.Context, req *domain.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return ErrAlreadyExists
	}
	s.requests[req.ID] = cloneRequest(req)
	s.requestOrder = append(s.requestOrder, req.ID)
	return nil
}

// GetRequest retrieves a request by ID.
func (s *MemoryStore) GetRequest(_ context.Context, id string) (*domain.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(req), nil
}

// UpdateRequest persists a request transition with a version check.
func (s *MemoryStore) UpdateRequest(_ context.Context, req *domain.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateRequestLocked(req)
}

func (s *MemoryStore) updateRequestLocked(req *domain.PaymentRequest) error {
	cur, ok := s.requests[req.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != req.Version {
		return ErrConflict
	}
	req.Version++
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

// ListRequests returns requests matching the filter, newest first.
func (s *MemoryStore) ListRequests(_ context.Context, filter RequestFilter) ([]*domain.PaymentRequest, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*domain.PaymentRequest
	for i := len(s.requestOrder) - 1; i >= 0; i-- {
		req := s.requests[s.requestOrder[i]]
		if filter.CustomerID != "" && req.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Rail != "" && req.Rail != filter.Rail {
			continue
		}
		if filter.Kind != "" && req.Kind != filter.Kind {
			continue
		}
		all = append(all, cloneRequest(req))
	}

	return page(all, filter.Limit, filter.Offset)
}

// PendingRequests returns the FIFO queue for one side of a rail.
func (s *MemoryStore) PendingRequests(_ context.Context, rail domain.Rail, kind domain.RequestKind) ([]*domain.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PaymentRequest
	for _, id := range s.requestOrder {
		req := s.requests[id]
		if req.Status == domain.RequestPending && req.Rail == rail && req.Kind == kind {
			out = append(out, cloneRequest(req))
		}
	}
	return out, nil
}

// ExpiredRequests returns pending requests past their expiry.
func (s *MemoryStore) ExpiredRequests(_ context.Context, asOf time.Time, limit int) ([]*domain.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PaymentRequest
	for _, id := range s.requestOrder {
		req := s.requests[id]
		if req.Expired(asOf) {
			out = append(out, cloneRequest(req))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// CreateMatch atomically inserts the match and consumes both requests.
func (s *MemoryStore) CreateMatch(_ context.Context, match *domain.Match, deposit, withdrawal *domain.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[match.ID]; ok {
		return ErrAlreadyExists
	}

	curDep, ok := s.requests[deposit.ID]
	if !ok {
		return ErrNotFound
	}
	curWd, ok := s.requests[withdrawal.ID]
	if !ok {
		return ErrNotFound
	}

	// Both sides must still be unconsumed.
	if curDep.Status != domain.RequestPending || curDep.Version != deposit.Version {
		return ErrConflict
	}
	if curWd.Status != domain.RequestPending || curWd.Version != withdrawal.Version {
		return ErrConflict
	}

	deposit.Version++
	withdrawal.Version++
	s.requests[deposit.ID] = cloneRequest(deposit)
	s.requests[withdrawal.ID] = cloneRequest(withdrawal)
	s.matches[match.ID] = cloneMatch(match)
	s.matchOrder = append(s.matchOrder, match.ID)
	return nil
}

// GetMatch retrieves a match by ID.
func (s *MemoryStore) GetMatch(_ context.Context, id string) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMatch(match), nil
}

// UpdateMatch persists a match transition plus any linked request
// transitions under one lock acquisition.
func (s *MemoryStore) UpdateMatch(_ context.Context, match *domain.Match, requests ...*domain.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.matches[match.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != match.Version {
		return ErrConflict
	}

	// Validate request versions before writing anything.
	for _, req := range requests {
		curReq, ok := s.requests[req.ID]
		if !ok {
			return ErrNotFound
		}
		if curReq.Version != req.Version {
			return ErrConflict
		}
	}

	match.Version++
	s.matches[match.ID] = cloneMatch(match)
	for _, req := range requests {
		req.Version++
		s.requests[req.ID] = cloneRequest(req)
	}
	return nil
}

// ListMatches returns matches matching the filter, newest first.
func (s *MemoryStore) ListMatches(_ context.Context, filter MatchFilter) ([]*domain.Match, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*domain.Match
	for i := len(s.matchOrder) - 1; i >= 0; i-- {
		m := s.matches[s.matchOrder[i]]
		if filter.CustomerID != "" && !m.HasParty(filter.CustomerID) {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.Rail != "" && m.Rail != filter.Rail {
			continue
		}
		if filter.SettlementStatus != "" && m.SettlementStatus != filter.SettlementStatus {
			continue
		}
		all = append(all, cloneMatch(m))
	}

	return page(all, filter.Limit, filter.Offset)
}

// OverdueMatches returns matches past a deadline, oldest first.
func (s *MemoryStore) OverdueMatches(_ context.Context, asOf time.Time, limit int) ([]*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Match
	for _, id := range s.matchOrder {
		m := s.matches[id]
		if m.PaymentOverdue(asOf) || m.VerificationOverdue(asOf) {
			out = append(out, cloneMatch(m))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func page[T any](all []T, limit, offset int) ([]T, int64, error) {
	total := int64(len(all))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}
