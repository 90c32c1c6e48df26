package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the immutable ledger entry written by a settlement:
// the transferred amount plus before/after balance snapshots for both
// sides. Rows are created exactly once and never updated; they survive
// deletion of the card or company they reference.
type Transaction struct {
	ID                   int             `json:"id" db:"id"`
	PublicID             string          `json:"transaction_id" db:"public_id"`
	CardID               int             `json:"card_id" db:"card_id"`
	CompanyID            int             `json:"company_id" db:"company_id"`
	Amount               decimal.Decimal `json:"amount" db:"amount"`
	CardBalanceBefore    decimal.Decimal `json:"card_balance_before" db:"card_balance_before"`
	CardBalanceAfter     decimal.Decimal `json:"card_balance_after" db:"card_balance_after"`
	CompanyBalanceBefore decimal.Decimal `json:"company_balance_before" db:"company_balance_before"`
	CompanyBalanceAfter  decimal.Decimal `json:"company_balance_after" db:"company_balance_after"`
	ReceiptID            int             `json:"receipt_id" db:"receipt_id"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// Receipt is the artifact record owned by a Transaction. ImgPath points
// at the rendered barcode image; the core stores the path but never
// interprets the artifact itself.
type Receipt struct {
	ID        int       `json:"id" db:"id"`
	ImgPath   string    `json:"img" db:"img_path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
