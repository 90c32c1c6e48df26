package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Card is a prepaid card bound to a physical NFC tag. The balance is
// mutated only through the settlement engine and the top-up workflow;
// the version column backs the optimistic check on every balance write.
type Card struct {
	ID         int             `json:"id" db:"id"`
	CardNumber string          `json:"card_number" db:"card_number"`
	CVV        string          `json:"cvv" db:"cvv"`
	CardUID    string          `json:"card_uid" db:"card_uid"`
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	Version    int             `json:"version" db:"version"`
	OwnerID    int             `json:"owner_id" db:"owner_id"`
	PinCode    string          `json:"pin_code,omitempty" db:"pin_code"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Format constraints for card identifiers.
const (
	CardNumberLength = 16
	CVVLength        = 3
	CardUIDLength    = 8
	PinCodeLength    = 4
)
