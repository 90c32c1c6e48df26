package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ecoreceipt/backend/internal/metrics"
	"github.com/ecoreceipt/backend/internal/models"
)

// TopUpService manages the cardholder top-up request workflow: create in
// waiting state, list pending for administrators, accept or deny once.
type TopUpService struct {
	db         *sql.DB
	settlement *SettlementService
	audit      *AuditLogger
	validator  *ValidationHelper
	metrics    *metrics.Collector
}

func NewTopUpService(db *sql.DB, settlement *SettlementService, collector *metrics.Collector) *TopUpService {
	return &TopUpService{
		db:         db,
		settlement: settlement,
		audit:      NewAuditLogger(),
		validator:  NewValidationHelper(),
		metrics:    collector,
	}
}

// Create registers a new waiting top-up request for a card the profile
// owns. Ownership is checked by resolving the card number scoped to the
// requester, so a foreign card number reads as not found.
func (t *TopUpService) Create(ctx context.Context, profileID int, cardNumber string, amount decimal.Decimal, message string) (*models.IncreaseBalanceRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var cardID int
	err := t.db.QueryRowContext(ctx, `
		SELECT id FROM cards WHERE card_number = $1 AND owner_id = $2`,
		cardNumber, profileID).Scan(&cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}

	req := &models.IncreaseBalanceRequest{
		CardID:          cardID,
		CardNumber:      cardNumber,
		RequestedMoney:  amount,
		AttachedMessage: message,
		RequestStatus:   models.RequestStatusWaiting,
	}

	err = t.db.QueryRowContext(ctx, `
		INSERT INTO increase_balance_requests
		(card_id, requested_money, attached_message, request_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		req.CardID, req.RequestedMoney, req.AttachedMessage, req.RequestStatus,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}

	log.Printf("[TOPUP] Request %d created for card %d, amount %s", req.ID, req.CardID, amount.StringFixed(2))
	return req, nil
}

// ListWaiting returns all unresolved requests, oldest first, for the
// administrator review queue.
func (t *TopUpService) ListWaiting(ctx context.Context, role string) ([]models.IncreaseBalanceRequest, error) {
	if role != models.RoleAdmin {
		return nil, ErrForbidden
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT r.id, r.card_id, c.card_number, r.requested_money, r.attached_message,
		       r.request_status, r.created_at, r.updated_at
		FROM increase_balance_requests r
		JOIN cards c ON c.id = r.card_id
		WHERE r.request_status = $1
		ORDER BY r.created_at ASC`,
		models.RequestStatusWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.IncreaseBalanceRequest{}
	for rows.Next() {
		var req models.IncreaseBalanceRequest
		if err := rows.Scan(&req.ID, &req.CardID, &req.CardNumber, &req.RequestedMoney,
			&req.AttachedMessage, &req.RequestStatus, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Consider resolves a waiting request. Accepting credits the card and
// flips the status inside one database transaction, so a crash can never
// leave a credited card with a still-waiting request or the reverse.
// Resolved requests are immutable.
func (t *TopUpService) Consider(ctx context.Context, role string, requestID int, decision string) (*models.IncreaseBalanceRequest, error) {
	if role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if decision != models.RequestStatusAccepted && decision != models.RequestStatusDenied {
		return nil, ErrInvalidDecision
	}

	var req *models.IncreaseBalanceRequest
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		req, err = t.considerOnce(ctx, requestID, decision)
		if err == nil || !isRetryable(err) {
			break
		}
		log.Printf("[TOPUP] Conflict on attempt %d/%d for request %d: %v", attempt, settleAttempts, requestID, err)
	}
	if err != nil {
		if isRetryable(err) {
			return nil, fmt.Errorf("top-up decision aborted after %d conflicting attempts: %w", settleAttempts, err)
		}
		return nil, err
	}

	t.audit.LogTopUp(req.ID, req.CardID, req.RequestedMoney, decision)
	t.metrics.RecordTopUpDecision(decision)

	if decision == models.RequestStatusAccepted && t.settlement != nil {
		go func() {
			if err := t.settlement.queueNotification("topup_accepted", req.CardID,
				strconv.Itoa(req.ID), req.RequestedMoney); err != nil {
				log.Printf("[TOPUP] Failed to queue notification for request %d: %v", req.ID, err)
			}
		}()
	}

	return req, nil
}

func (t *TopUpService) considerOnce(ctx context.Context, requestID int, decision string) (*models.IncreaseBalanceRequest, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The request row is locked for the whole decision, so two admins
	// racing on the same request serialize here and the loser sees it
	// already resolved.
	var req models.IncreaseBalanceRequest
	err = tx.QueryRow(`
		SELECT id, card_id, requested_money, attached_message, request_status, created_at, updated_at
		FROM increase_balance_requests WHERE id = $1 FOR UPDATE`, requestID).
		Scan(&req.ID, &req.CardID, &req.RequestedMoney, &req.AttachedMessage,
			&req.RequestStatus, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	if req.RequestStatus != models.RequestStatusWaiting {
		return nil, ErrRequestResolved
	}

	if decision == models.RequestStatusAccepted {
		if _, _, err := t.settlement.CreditCardTx(tx, req.CardID, req.RequestedMoney); err != nil {
			return nil, err
		}
	}

	err = tx.QueryRow(`
		UPDATE increase_balance_requests SET request_status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING updated_at`,
		decision, req.ID).Scan(&req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.RequestStatus = decision

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateTopUpRequest is the cardholder's top-up endpoint payload.
type CreateTopUpRequest struct {
	CardNumber      string          `json:"card_number" validate:"required,len=16,numeric"`
	Amount          decimal.Decimal `json:"amount"`
	AttachedMessage string          `json:"attached_message" validate:"max=512"`
}

// ConsiderTopUpRequest carries the administrator's decision.
type ConsiderTopUpRequest struct {
	Decision string `json:"decision" validate:"required"`
}

// CreateRequest handles a cardholder top-up submission
// @Summary Request a balance top-up
// @Tags topups
// @Accept json
// @Produce json
// @Param request body CreateTopUpRequest true "Top-up data"
// @Success 201 {object} models.IncreaseBalanceRequest
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /topups [post]
func (t *TopUpService) CreateRequest(w http.ResponseWriter, r *http.Request) {
	profileID, ok := r.Context().Value("profileID").(int)
	if !ok {
		SendErrorResponse(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateTopUpRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := t.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	created, err := t.Create(r.Context(), profileID, req.CardNumber, req.Amount, req.AttachedMessage)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"request": created,
	})
}

// ListWaitingRequests returns the administrator review queue
// @Summary List waiting top-up requests
// @Tags topups
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} ErrorResponse
// @Security BearerAuth
// @Router /topups/waiting [get]
func (t *TopUpService) ListWaitingRequests(w http.ResponseWriter, r *http.Request) {
	role, _ := r.Context().Value("role").(string)

	requests, err := t.ListWaiting(r.Context(), role)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"requests": requests,
	})
}

// ConsiderRequest resolves a waiting top-up request
// @Summary Accept or deny a top-up request
// @Tags topups
// @Accept json
// @Produce json
// @Param requestID path int true "Request ID"
// @Param request body ConsiderTopUpRequest true "Decision"
// @Success 200 {object} models.IncreaseBalanceRequest
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /topups/{requestID}/consider [post]
func (t *TopUpService) ConsiderRequest(w http.ResponseWriter, r *http.Request) {
	role, _ := r.Context().Value("role").(string)

	requestID, err := strconv.Atoi(chi.URLParam(r, "requestID"))
	if err != nil {
		SendErrorResponse(w, "Invalid request ID", http.StatusBadRequest, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req ConsiderTopUpRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := t.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	resolved, err := t.Consider(r.Context(), role, requestID, req.Decision)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"request": resolved,
	})
}
