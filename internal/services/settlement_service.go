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
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ecoreceipt/backend/internal/metrics"
	"github.com/ecoreceipt/backend/internal/models"
)

// settleAttempts bounds retries of a settlement that lost an optimistic
// balance check or hit a serialization failure.
const settleAttempts = 3

const notificationQueue = "notification_queue"

// SettlementService moves money from a card to a company and records the
// fact. Both balance writes and the transaction snapshot share one
// database transaction; nothing partial is ever visible.
type SettlementService struct {
	db        *sql.DB
	redis     *redis.Client
	receipts  *ReceiptService
	audit     *AuditLogger
	validator *ValidationHelper
	metrics   *metrics.Collector
}

func NewSettlementService(db *sql.DB, redisClient *redis.Client, receipts *ReceiptService, collector *metrics.Collector) *SettlementService {
	return &SettlementService{
		db:        db,
		redis:     redisClient,
		receipts:  receipts,
		audit:     NewAuditLogger(),
		validator: NewValidationHelper(),
		metrics:   collector,
	}
}

// WriteOffRequest is the terminal's settlement payload.
type WriteOffRequest struct {
	CardUID      string          `json:"card_uid" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	CompanyToken string          `json:"company_token" validate:"required,len=15"`
}

// WriteOff handles a point-of-sale settlement
// @Summary Settle a card payment
// @Description Debit a card by UID and credit the company identified by its token
// @Tags terminal
// @Accept json
// @Produce json
// @Param request body WriteOffRequest true "Settlement data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /terminal/write-off [post]
func (s *SettlementService) WriteOff(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req WriteOffRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tr, err := s.Settle(r.Context(), req.CardUID, req.Amount, req.CompanyToken)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":            true,
		"transaction_id":     tr.PublicID,
		"card_balance_after": tr.CardBalanceAfter.StringFixed(2),
	})
}

// Settle performs the atomic debit-card/credit-company transfer and
// returns the persisted transaction record. Transient store conflicts are
// retried up to settleAttempts before being surfaced.
func (s *SettlementService) Settle(ctx context.Context, cardUID string, amount decimal.Decimal, companyToken string) (*models.Transaction, error) {
	started := time.Now()

	uid, err := ValidateCardUID(cardUID)
	if err != nil {
		s.metrics.RecordSettlement(time.Since(started), false)
		return nil, err
	}
	if !amount.IsPositive() {
		s.metrics.RecordSettlement(time.Since(started), false)
		return nil, ErrInvalidAmount
	}

	var tr *models.Transaction
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		tr, err = s.settleOnce(ctx, uid, amount, companyToken)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			s.audit.LogError(uid, err)
			s.metrics.RecordSettlement(time.Since(started), false)
			return nil, err
		}
		log.Printf("[SETTLEMENT] Conflict on attempt %d/%d for card %s: %v", attempt, settleAttempts, uid, err)
	}
	if err != nil {
		s.audit.LogError(uid, err)
		s.metrics.RecordSettlement(time.Since(started), false)
		return nil, fmt.Errorf("settlement aborted after %d conflicting attempts: %w", settleAttempts, err)
	}

	s.audit.LogSettlement(tr.PublicID, tr.CardID, tr.CompanyID, tr.Amount, "SUCCESS")
	s.metrics.RecordSettlement(time.Since(started), true)

	// Receipt rendering and cardholder notification happen after the
	// commit and must never fail the settlement.
	go s.finalize(tr)

	return tr, nil
}

func (s *SettlementService) settleOnce(ctx context.Context, cardUID string, amount decimal.Decimal, companyToken string) (*models.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock order is fixed (card, then company) so concurrent settlements
	// cannot deadlock against each other.
	card, err := lockCardByUID(tx, cardUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}

	company, err := lockCompanyByToken(tx, companyToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, err
	}

	if card.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	tr := &models.Transaction{
		PublicID:             uuid.NewString(),
		CardID:               card.ID,
		CompanyID:            company.ID,
		Amount:               amount,
		CardBalanceBefore:    card.Balance,
		CardBalanceAfter:     card.Balance.Sub(amount),
		CompanyBalanceBefore: company.Balance,
		CompanyBalanceAfter:  company.Balance.Add(amount),
	}

	if err := updateCardBalance(tx, card.ID, tr.CardBalanceAfter, card.Version); err != nil {
		return nil, err
	}
	if err := updateCompanyBalance(tx, company.ID, tr.CompanyBalanceAfter, company.Version); err != nil {
		return nil, err
	}

	if err := tx.QueryRow(`
		INSERT INTO receipts (created_at) VALUES (NOW()) RETURNING id`).Scan(&tr.ReceiptID); err != nil {
		return nil, err
	}

	err = tx.QueryRow(`
		INSERT INTO transactions
		(public_id, card_id, company_id, amount, card_balance_before, card_balance_after,
		 company_balance_before, company_balance_after, receipt_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at`,
		tr.PublicID, tr.CardID, tr.CompanyID, tr.Amount,
		tr.CardBalanceBefore, tr.CardBalanceAfter,
		tr.CompanyBalanceBefore, tr.CompanyBalanceAfter, tr.ReceiptID,
	).Scan(&tr.ID, &tr.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tr, nil
}

// CreditCardTx applies a pure credit to a card inside an open database
// transaction. It is the single balance-mutation primitive shared with
// the top-up workflow; there is no offsetting debit.
func (s *SettlementService) CreditCardTx(tx *sql.Tx, cardID int, amount decimal.Decimal) (before, after decimal.Decimal, err error) {
	var card models.Card
	err = tx.QueryRow(`
		SELECT id, balance, version FROM cards WHERE id = $1 FOR UPDATE`, cardID).
		Scan(&card.ID, &card.Balance, &card.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, decimal.Zero, ErrCardNotFound
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	after = card.Balance.Add(amount)
	if err := updateCardBalance(tx, card.ID, after, card.Version); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return card.Balance, after, nil
}

func lockCardByUID(tx *sql.Tx, cardUID string) (*models.Card, error) {
	var card models.Card
	err := tx.QueryRow(`
		SELECT id, balance, version FROM cards WHERE card_uid = $1 FOR UPDATE`, cardUID).
		Scan(&card.ID, &card.Balance, &card.Version)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func lockCompanyByToken(tx *sql.Tx, companyToken string) (*models.Company, error) {
	var company models.Company
	err := tx.QueryRow(`
		SELECT id, balance, version FROM companies WHERE company_token = $1 FOR UPDATE`, companyToken).
		Scan(&company.ID, &company.Balance, &company.Version)
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func updateCardBalance(tx *sql.Tx, cardID int, newBalance decimal.Decimal, version int) error {
	result, err := tx.Exec(`
		UPDATE cards SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`,
		newBalance, cardID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("card %d: %w", cardID, errBalanceConflict)
	}
	return nil
}

func updateCompanyBalance(tx *sql.Tx, companyID int, newBalance decimal.Decimal, version int) error {
	result, err := tx.Exec(`
		UPDATE companies SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`,
		newBalance, companyID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("company %d: %w", companyID, errBalanceConflict)
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, errBalanceConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure / deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func (s *SettlementService) finalize(tr *models.Transaction) {
	if s.receipts != nil {
		if _, err := s.receipts.RenderReceipt(tr); err != nil {
			log.Printf("[SETTLEMENT] Receipt rendering failed for %s: %v", tr.PublicID, err)
		}
	}
	if err := s.queueNotification("settlement", tr.CardID, tr.PublicID, tr.CardBalanceAfter); err != nil {
		log.Printf("[SETTLEMENT] Failed to queue notification for %s: %v", tr.PublicID, err)
	}
}

// queueNotification pushes a fire-and-forget event for the chat-bot
// worker. Delivery failures only log; the settlement already committed.
func (s *SettlementService) queueNotification(event string, cardID int, reference string, balanceAfter decimal.Decimal) error {
	if s.redis == nil {
		return nil
	}

	data, err := json.Marshal(map[string]any{
		"event":              event,
		"card_id":            cardID,
		"reference":          reference,
		"card_balance_after": balanceAfter.StringFixed(2),
		"timestamp":          time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	return s.redis.RPush(context.Background(), notificationQueue, data).Err()
}
