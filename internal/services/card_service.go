package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ecoreceipt/backend/internal/metrics"
	"github.com/ecoreceipt/backend/internal/models"
)

// CardService handles card registration and balance enquiries.
type CardService struct {
	db        *sql.DB
	issuer    *CardIssuer
	validator *ValidationHelper
	metrics   *metrics.Collector
}

func NewCardService(db *sql.DB, collector *metrics.Collector) *CardService {
	return &CardService{
		db:        db,
		issuer:    NewCardIssuer(db),
		validator: NewValidationHelper(),
		metrics:   collector,
	}
}

// GetBalance returns the card's balance if the requester owns the card
// or holds the administrator role.
func (cs *CardService) GetBalance(ctx context.Context, profileID int, role, cardUID string) (decimal.Decimal, error) {
	uid, err := ValidateCardUID(cardUID)
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	var ownerID int
	err = cs.db.QueryRowContext(ctx, `
		SELECT balance, owner_id FROM cards WHERE card_uid = $1`, uid).
		Scan(&balance, &ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrCardNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}

	if ownerID != profileID && role != models.RoleAdmin {
		return decimal.Zero, ErrForbidden
	}
	return balance, nil
}

// RegisterCardRequest binds a physical tag to the caller's account.
type RegisterCardRequest struct {
	CardUID string `json:"card_uid" validate:"required,len=8"`
	PinCode string `json:"pin_code" validate:"required,len=4,numeric"`
}

// RegisterCard issues a new card for the caller
// @Summary Register a card
// @Tags cards
// @Accept json
// @Produce json
// @Param request body RegisterCardRequest true "Card data"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /cards/register [post]
func (cs *CardService) RegisterCard(w http.ResponseWriter, r *http.Request) {
	profileID, ok := r.Context().Value("profileID").(int)
	if !ok {
		SendErrorResponse(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterCardRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := cs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	card, err := cs.issuer.IssueCard(r.Context(), profileID, req.CardUID, req.PinCode)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	cs.metrics.RecordCardIssued()
	log.Printf("[CARDS] Card %d issued for profile %d", card.ID, profileID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"card_number": card.CardNumber,
		"cvv":         card.CVV,
		"balance":     card.Balance.StringFixed(2),
	})
}

// GetCardBalance returns a card's balance
// @Summary Card balance enquiry
// @Tags cards
// @Produce json
// @Param cardUID path string true "Card UID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /cards/{cardUID}/balance [get]
func (cs *CardService) GetCardBalance(w http.ResponseWriter, r *http.Request) {
	profileID, ok := r.Context().Value("profileID").(int)
	if !ok {
		SendErrorResponse(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}
	role, _ := r.Context().Value("role").(string)

	balance, err := cs.GetBalance(r.Context(), profileID, role, chi.URLParam(r, "cardUID"))
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"balance": balance.StringFixed(2),
	})
}
