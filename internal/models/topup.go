package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Top-up request states. waiting is the only non-terminal state:
// waiting -> accepted or waiting -> denied, nothing else.
const (
	RequestStatusWaiting  = "waiting"
	RequestStatusAccepted = "accepted"
	RequestStatusDenied   = "denied"
)

// IncreaseBalanceRequest is a cardholder-initiated top-up awaiting an
// administrator decision. Accepting it credits the card with
// RequestedMoney; there is no offsetting merchant debit.
type IncreaseBalanceRequest struct {
	ID              int             `json:"id" db:"id"`
	CardID          int             `json:"card_id" db:"card_id"`
	CardNumber      string          `json:"card_number,omitempty" db:"-"`
	RequestedMoney  decimal.Decimal `json:"requested_money" db:"requested_money"`
	AttachedMessage string          `json:"attached_message" db:"attached_message"`
	RequestStatus   string          `json:"request_status" db:"request_status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}
