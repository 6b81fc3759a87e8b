package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"betops/internal/common/database"
	"betops/internal/p2p/domain"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestCols = `
	id, customer_id, kind, rail, amount_minor, currency, status, priority,
	details, notes, verification_code, match_id, matched_with, matched_at,
	version, created_at, updated_at, expires_at`

const matchCols = `
	id, deposit_request_id, withdrawal_request_id,
	deposit_customer_id, withdrawal_customer_id,
	rail, amount_minor, currency, escrow_minor, status, verification_code,
	payment_deadline, verification_deadline,
	payment_sent_at, payment_received_at, verified_at, completed_at,
	cancelled_at, cancel_reason,
	dispute_reason, disputed_by, disputed_at, dispute_resolved_at,
	settlement_status, settlement_error,
	version, created_at, updated_at`

// CreateRequest inserts a new payment request.
func (s *PostgresStore) CreateRequest(ctx context.Context, req *domain.PaymentRequest) error {
	query := `
		INSERT INTO p2p_requests (` + requestCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	details, err := json.Marshal(req.Details)
	if err != nil {
		return fmt.Errorf("marshaling payment details: %w", err)
	}

	_, err = s.db.Exec(ctx, query,
		req.ID, req.CustomerID, req.Kind, req.Rail,
		req.Amount.AmountMinor, req.Amount.Currency, req.Status, req.Priority,
		details, nullStr(req.Notes), req.VerificationCode,
		nullStr(req.MatchID), nullStr(req.MatchedWith), req.MatchedAt,
		req.Version, req.CreatedAt, req.UpdatedAt, req.ExpiresAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting request: %w", err)
	}
	return nil
}

// GetRequest retrieves a payment request by ID.
func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	query := `SELECT ` + requestCols + ` FROM p2p_requests WHERE id = $1`
	return scanRequest(s.db.QueryRow(ctx, query, id))
}

// UpdateRequest persists a request transition with a version check.
func (s *PostgresStore) UpdateRequest(ctx context.Context, req *domain.PaymentRequest) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE p2p_requests SET
			status = $2, match_id = $3, matched_with = $4, matched_at = $5,
			updated_at = $6, version = version + 1
		WHERE id = $1 AND version = $7
	`,
		req.ID, req.Status, nullStr(req.MatchID), nullStr(req.MatchedWith),
		req.MatchedAt, req.UpdatedAt, req.Version,
	)
	if err != nil {
		return fmt.Errorf("updating request %s: %w", req.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	req.Version++
	return nil
}

// ListRequests returns requests matching the filter, newest first, plus
// the unpaged total.
func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]*domain.PaymentRequest, int64, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	n := 1

	if filter.CustomerID != "" {
		where += fmt.Sprintf(" AND customer_id = $%d", n)
		args = append(args, filter.CustomerID)
		n++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, filter.Status)
		n++
	}
	if filter.Rail != "" {
		where += fmt.Sprintf(" AND rail = $%d", n)
		args = append(args, filter.Rail)
		n++
	}
	if filter.Kind != "" {
		where += fmt.Sprintf(" AND kind = $%d", n)
		args = append(args, filter.Kind)
		n++
	}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM p2p_requests "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting requests: %w", err)
	}

	query := "SELECT " + requestCols + " FROM p2p_requests " + where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n, n+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

// PendingRequests returns one side of a rail's queue in FIFO order.
// The ULID tiebreak keeps same-timestamp inserts in creation order.
func (s *PostgresStore) PendingRequests(ctx context.Context, rail domain.Rail, kind domain.RequestKind) ([]*domain.PaymentRequest, error) {
	query := `
		SELECT ` + requestCols + `
		FROM p2p_requests
		WHERE status = 'pending' AND rail = $1 AND kind = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, rail, kind)
	if err != nil {
		return nil, fmt.Errorf("listing pending requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ExpiredRequests returns pending requests past their expiry.
func (s *PostgresStore) ExpiredRequests(ctx context.Context, asOf time.Time, limit int) ([]*domain.PaymentRequest, error) {
	query := `
		SELECT ` + requestCols + `
		FROM p2p_requests
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("listing expired requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// CreateMatch inserts the match and consumes both requests in one
// transaction. The status precondition on the request updates is what
// keeps a request from entering two matches.
func (s *PostgresStore) CreateMatch(ctx context.Context, match *domain.Match, deposit, withdrawal *domain.PaymentRequest) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := insertMatch(ctx, tx, match); err != nil {
			return err
		}

		for _, req := range []*domain.PaymentRequest{deposit, withdrawal} {
			tag, err := tx.Exec(ctx, `
				UPDATE p2p_requests SET
					status = $2, match_id = $3, matched_with = $4, matched_at = $5,
					updated_at = $6, version = version + 1
				WHERE id = $1 AND status = 'pending' AND version = $7
			`,
				req.ID, req.Status, nullStr(req.MatchID), nullStr(req.MatchedWith),
				req.MatchedAt, req.UpdatedAt, req.Version,
			)
			if err != nil {
				return fmt.Errorf("consuming request %s: %w", req.ID, err)
			}
			if tag.RowsAffected() != 1 {
				return ErrConflict
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	deposit.Version++
	withdrawal.Version++
	return nil
}

func insertMatch(ctx context.Context, q database.Querier, m *domain.Match) error {
	query := `
		INSERT INTO p2p_matches (` + matchCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`

	_, err := q.Exec(ctx, query,
		m.ID, m.DepositRequestID, m.WithdrawalRequestID,
		m.DepositCustomerID, m.WithdrawalCustomerID,
		m.Rail, m.Amount.AmountMinor, m.Amount.Currency, m.EscrowAmount.AmountMinor,
		m.Status, m.VerificationCode,
		m.PaymentDeadline, m.VerificationDeadline,
		m.PaymentSentAt, m.PaymentReceivedAt, m.VerifiedAt, m.CompletedAt,
		m.CancelledAt, nullStr(m.CancelReason),
		nullStr(m.DisputeReason), nullStr(m.DisputedBy), m.DisputedAt, m.DisputeResolvedAt,
		string(m.SettlementStatus), nullStr(m.SettlementError),
		m.Version, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrConflict
		}
		if database.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

// GetMatch retrieves a match by ID.
func (s *PostgresStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	query := `SELECT ` + matchCols + ` FROM p2p_matches WHERE id = $1`
	return scanMatch(s.db.QueryRow(ctx, query, id))
}

// UpdateMatch persists a match transition plus any linked request
// transitions in one transaction, all version checked.
func (s *PostgresStore) UpdateMatch(ctx context.Context, match *domain.Match, requests ...*domain.PaymentRequest) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE p2p_matches SET
				status = $2,
				payment_sent_at = $3, payment_received_at = $4, verified_at = $5,
				completed_at = $6, cancelled_at = $7, cancel_reason = $8,
				dispute_reason = $9, disputed_by = $10, disputed_at = $11,
				dispute_resolved_at = $12,
				settlement_status = $13, settlement_error = $14,
				updated_at = $15, version = version + 1
			WHERE id = $1 AND version = $16
		`,
			match.ID, match.Status,
			match.PaymentSentAt, match.PaymentReceivedAt, match.VerifiedAt,
			match.CompletedAt, match.CancelledAt, nullStr(match.CancelReason),
			nullStr(match.DisputeReason), nullStr(match.DisputedBy), match.DisputedAt,
			match.DisputeResolvedAt,
			string(match.SettlementStatus), nullStr(match.SettlementError),
			match.UpdatedAt, match.Version,
		)
		if err != nil {
			return fmt.Errorf("updating match %s: %w", match.ID, err)
		}
		if tag.RowsAffected() != 1 {
			return ErrConflict
		}

		for _, req := range requests {
			tag, err := tx.Exec(ctx, `
				UPDATE p2p_requests SET
					status = $2, updated_at = $3, version = version + 1
				WHERE id = $1 AND version = $4
			`, req.ID, req.Status, req.UpdatedAt, req.Version)
			if err != nil {
				return fmt.Errorf("updating request %s: %w", req.ID, err)
			}
			if tag.RowsAffected() != 1 {
				return ErrConflict
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	match.Version++
	for _, req := range requests {
		req.Version++
	}
	return nil
}

// ListMatches returns matches matching the filter, newest first, plus
// the unpaged total.
func (s *PostgresStore) ListMatches(ctx context.Context, filter MatchFilter) ([]*domain.Match, int64, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	n := 1

	if filter.CustomerID != "" {
		where += fmt.Sprintf(" AND (deposit_customer_id = $%d OR withdrawal_customer_id = $%d)", n, n)
		args = append(args, filter.CustomerID)
		n++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, filter.Status)
		n++
	}
	if filter.Rail != "" {
		where += fmt.Sprintf(" AND rail = $%d", n)
		args = append(args, filter.Rail)
		n++
	}
	if filter.SettlementStatus != "" {
		where += fmt.Sprintf(" AND settlement_status = $%d", n)
		args = append(args, string(filter.SettlementStatus))
		n++
	}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM p2p_matches "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting matches: %w", err)
	}

	query := "SELECT " + matchCols + " FROM p2p_matches " + where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n, n+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var out []*domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// OverdueMatches returns matches past a deadline that automated
// cancellation still applies to, oldest first.
func (s *PostgresStore) OverdueMatches(ctx context.Context, asOf time.Time, limit int) ([]*domain.Match, error) {
	query := `
		SELECT ` + matchCols + `
		FROM p2p_matches
		WHERE (status = 'pending' AND payment_deadline < $1)
		   OR (status IN ('pending', 'payment_sent', 'payment_received') AND verification_deadline < $1)
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("listing overdue matches: %w", err)
	}
	defer rows.Close()

	var out []*domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	var r domain.PaymentRequest
	var details []byte
	var notes, matchID, matchedWith *string

	err := row.Scan(
		&r.ID, &r.CustomerID, &r.Kind, &r.Rail,
		&r.Amount.AmountMinor, &r.Amount.Currency, &r.Status, &r.Priority,
		&details, &notes, &r.VerificationCode,
		&matchID, &matchedWith, &r.MatchedAt,
		&r.Version, &r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning request: %w", err)
	}

	if notes != nil {
		r.Notes = *notes
	}
	if matchID != nil {
		r.MatchID = *matchID
	}
	if matchedWith != nil {
		r.MatchedWith = *matchedWith
	}
	if err := json.Unmarshal(details, &r.Details); err != nil {
		return nil, fmt.Errorf("unmarshaling payment details: %w", err)
	}

	return &r, nil
}

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	var cancelReason, disputeReason, disputedBy, settlementError *string
	var settlementStatus string

	err := row.Scan(
		&m.ID, &m.DepositRequestID, &m.WithdrawalRequestID,
		&m.DepositCustomerID, &m.WithdrawalCustomerID,
		&m.Rail, &m.Amount.AmountMinor, &m.Amount.Currency, &m.EscrowAmount.AmountMinor,
		&m.Status, &m.VerificationCode,
		&m.PaymentDeadline, &m.VerificationDeadline,
		&m.PaymentSentAt, &m.PaymentReceivedAt, &m.VerifiedAt, &m.CompletedAt,
		&m.CancelledAt, &cancelReason,
		&disputeReason, &disputedBy, &m.DisputedAt, &m.DisputeResolvedAt,
		&settlementStatus, &settlementError,
		&m.Version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning match: %w", err)
	}

	m.EscrowAmount.Currency = m.Amount.Currency
	m.SettlementStatus = domain.SettlementStatus(settlementStatus)
	if cancelReason != nil {
		m.CancelReason = *cancelReason
	}
	if disputeReason != nil {
		m.DisputeReason = *disputeReason
	}
	if disputedBy != nil {
		m.DisputedBy = *disputedBy
	}
	if settlementError != nil {
		m.SettlementError = *settlementError
	}

	return &m, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
