package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecoreceipt/backend/internal/models"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// TransactionService exposes the cardholder-facing view of the ledger.
// Queries are always scoped by card ownership; merchant-side balance
// snapshots never leave this service.
type TransactionService struct {
	db *sql.DB
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{db: db}
}

// UserTransaction is the cardholder's view of a ledger entry. It carries
// the card-side snapshots and the merchant's display fields only.
type UserTransaction struct {
	TransactionID     string          `json:"transaction_id"`
	CardNumber        string          `json:"card_number"`
	CompanyName       string          `json:"company_name"`
	CompanyAddress    string          `json:"company_address"`
	Amount            decimal.Decimal `json:"amount"`
	CardBalanceBefore decimal.Decimal `json:"card_balance_before"`
	CardBalanceAfter  decimal.Decimal `json:"card_balance_after"`
	ReceiptImg        string          `json:"receipt_img,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ListForOwner returns the profile's settlement history across all of
// its cards, newest first.
func (ts *TransactionService) ListForOwner(ctx context.Context, profileID, limit, offset int) ([]UserTransaction, error) {
	rows, err := ts.db.QueryContext(ctx, `
		SELECT t.public_id, c.card_number, co.name,
		       co.country, co.city, co.street, co.building,
		       t.amount, t.card_balance_before, t.card_balance_after,
		       COALESCE(r.img_path, ''), t.created_at
		FROM transactions t
		JOIN cards c ON c.id = t.card_id
		JOIN companies co ON co.id = t.company_id
		LEFT JOIN receipts r ON r.id = t.receipt_id
		WHERE c.owner_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3`,
		profileID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []UserTransaction{}
	for rows.Next() {
		var tr UserTransaction
		var co models.Company
		if err := rows.Scan(&tr.TransactionID, &tr.CardNumber, &tr.CompanyName,
			&co.Country, &co.City, &co.Street, &co.Building,
			&tr.Amount, &tr.CardBalanceBefore, &tr.CardBalanceAfter,
			&tr.ReceiptImg, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.CompanyAddress = co.Address()
		transactions = append(transactions, tr)
	}
	return transactions, rows.Err()
}

// GetUserTransactions returns the caller's settlement history
// @Summary List own transactions
// @Tags transactions
// @Produce json
// @Param limit query int false "Page size (default 10, max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Security BearerAuth
// @Router /transactions [get]
func (ts *TransactionService) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	profileID, ok := r.Context().Value("profileID").(int)
	if !ok {
		SendErrorResponse(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	transactions, err := ts.ListForOwner(r.Context(), profileID, limit, offset)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"transactions": transactions,
		"limit":        limit,
		"offset":       offset,
	})
}
