// Package api exposes the matching subsystem over HTTP for the ops
// dashboard and the customer-facing app backend.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"betops/internal/common/api"
	"betops/internal/common/money"
	"betops/internal/p2p"
	"betops/internal/p2p/domain"
	"betops/internal/p2p/store"
)

// Handler handles p2p matching HTTP requests.
type Handler struct {
	service *p2p.Service
	feed    *Feed
}

// NewHandler creates a new p2p handler.
func NewHandler(service *p2p.Service, feed *Feed) *Handler {
	return &Handler{service: service, feed: feed}
}

// Routes returns the p2p routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Request routes
	r.Post("/requests", h.CreateRequest)
	r.Get("/requests", h.ListRequests)
	r.Get("/requests/{id}", h.GetRequest)

	// Match routes
	r.Get("/matches", h.ListMatches)
	r.Get("/matches/{id}", h.GetMatch)
	r.Post("/matches/{id}/payment-sent", h.PaymentSent)
	r.Post("/matches/{id}/payment-received", h.PaymentReceived)
	r.Post("/matches/{id}/verify", h.Verify)
	r.Post("/matches/{id}/dispute", h.Dispute)

	// Dashboard routes
	r.Get("/stats", h.Stats)
	r.Get("/feed", h.feed.ServeHTTP)

	return r
}

// CreateRequestRequest is the API request for submitting a payment request.
type CreateRequestRequest struct {
	CustomerID  string              `json:"customer_id" validate:"required,max=64"`
	Kind        string              `json:"kind" validate:"required,oneof=deposit withdrawal"`
	Rail        string              `json:"rail" validate:"required"`
	AmountMinor int64               `json:"amount_minor" validate:"required,gt=0"`
	Currency    string              `json:"currency" validate:"required,len=3"`
	Details     PaymentDetailsInput `json:"details"`
	Priority    string              `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Notes       string              `json:"notes" validate:"max=500"`
}

// PaymentDetailsInput carries the rail handle the counterparty pays to.
type PaymentDetailsInput struct {
	Username string `json:"username" validate:"max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"max=32"`
	FullName string `json:"full_name" validate:"max=255"`
}

// CreateRequest handles POST /requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateRequestRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	kind, err := domain.ParseRequestKind(req.Kind)
	if err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	result, err := h.service.SubmitRequest(r.Context(), p2p.SubmitRequestInput{
		CustomerID: req.CustomerID,
		Kind:       kind,
		Rail:       domain.Rail(req.Rail),
		Amount:     money.New(req.AmountMinor, money.Currency(req.Currency)),
		Details: domain.PaymentDetails{
			Username: req.Details.Username,
			Email:    req.Details.Email,
			Phone:    req.Details.Phone,
			FullName: req.Details.FullName,
		},
		Priority: req.Priority,
		Notes:    req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, result)
}

// ListRequests handles GET /requests
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	params := api.GetPaginationParams(r, 50, 200)
	q := r.URL.Query()

	filter := store.RequestFilter{
		CustomerID: q.Get("customer_id"),
		Status:     domain.RequestStatus(q.Get("status")),
		Rail:       domain.Rail(q.Get("rail")),
		Kind:       domain.RequestKind(q.Get("kind")),
		Limit:      params.Limit,
		Offset:     params.Offset,
	}

	requests, total, err := h.service.ListRequests(r.Context(), filter)
	if err != nil {
		api.InternalError(w, "failed to list requests")
		return
	}

	api.WritePaginated(w, requests, &api.Pagination{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		HasMore: int64(params.Offset+len(requests)) < total,
	})
}

// GetRequest handles GET /requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "request ID required")
		return
	}

	request, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, request)
}

// ListMatches handles GET /matches
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	params := api.GetPaginationParams(r, 50, 200)
	q := r.URL.Query()

	filter := store.MatchFilter{
		CustomerID:       q.Get("customer_id"),
		Status:           domain.MatchStatus(q.Get("status")),
		Rail:             domain.Rail(q.Get("rail")),
		SettlementStatus: domain.SettlementStatus(q.Get("settlement")),
		Limit:            params.Limit,
		Offset:           params.Offset,
	}

	matches, total, err := h.service.ListMatches(r.Context(), filter)
	if err != nil {
		api.InternalError(w, "failed to list matches")
		return
	}

	api.WritePaginated(w, matches, &api.Pagination{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		HasMore: int64(params.Offset+len(matches)) < total,
	})
}

// GetMatch handles GET /matches/{id}
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "match ID required")
		return
	}

	match, err := h.service.GetMatch(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, match)
}

// MatchActionRequest identifies the acting party for a match transition.
type MatchActionRequest struct {
	CustomerID string `json:"customer_id" validate:"required,max=64"`
}

// PaymentSent handles POST /matches/{id}/payment-sent
func (h *Handler) PaymentSent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MatchActionRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	match, err := h.service.ConfirmPaymentSent(r.Context(), id, req.CustomerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, match)
}

// PaymentReceived handles POST /matches/{id}/payment-received
func (h *Handler) PaymentReceived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MatchActionRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	match, err := h.service.ConfirmPaymentReceived(r.Context(), id, req.CustomerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, match)
}

// VerifyMatchRequest carries the verification code quoted in the
// payment memo.
type VerifyMatchRequest struct {
	CustomerID string `json:"customer_id" validate:"required,max=64"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
}

// Verify handles POST /matches/{id}/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req VerifyMatchRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	match, err := h.service.VerifyAndComplete(r.Context(), id, req.CustomerID, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, match)
}

// DisputeMatchRequest carries a dispute report.
type DisputeMatchRequest struct {
	CustomerID string `json:"customer_id" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"required,max=500"`
}

// Dispute handles POST /matches/{id}/dispute
func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DisputeMatchRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	match, err := h.service.RaiseDispute(r.Context(), id, req.CustomerID, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, match)
}

// Stats handles GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		api.InternalError(w, "failed to compute stats")
		return
	}

	api.WriteData(w, http.StatusOK, stats)
}

// writeServiceError maps service errors onto API responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		api.BadRequest(w, err.Error())
	case domain.IsNotFound(err):
		api.NotFound(w, err.Error())
	case domain.IsStateViolation(err):
		api.StateViolation(w, err.Error())
	default:
		api.InternalError(w, "internal error")
	}
}
