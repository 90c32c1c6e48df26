package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	CardID        int       `json:"card_id,omitempty"`
	CompanyID     int       `json:"company_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogSettlement(transactionID string, cardID, companyID int, amount decimal.Decimal, status string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "SETTLEMENT",
		TransactionID: transactionID,
		CardID:        cardID,
		CompanyID:     companyID,
		Amount:        amount.StringFixed(2),
		Status:        status,
	})
}

func (a *AuditLogger) LogTopUp(requestID, cardID int, amount decimal.Decimal, decision string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "TOPUP_DECISION",
		CardID:    cardID,
		Amount:    amount.StringFixed(2),
		Status:    decision,
		Details:   map[string]int{"request_id": requestID},
	})
}

func (a *AuditLogger) LogError(reference string, err error) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: reference,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
