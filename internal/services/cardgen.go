package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"log"
	"math/big"
	"strings"

	"github.com/lib/pq"
	"github.com/ecoreceipt/backend/internal/models"
)

// cardNumberAttempts bounds the insert-and-retry loop for card number
// allocation. Exhausting it is reported to the caller instead of leaving
// the card without a number.
const cardNumberAttempts = 10

const companyTokenAlphabet = "0123456789#*"

// GenerateCVV draws a uniformly random 3-digit CVV. CVVs carry no
// uniqueness constraint.
func GenerateCVV() string {
	return randomDigits(models.CVVLength)
}

// ValidateCardUID checks the 8-hex-digit tag identifier format and
// returns the canonical lower-case form.
func ValidateCardUID(cardUID string) (string, error) {
	if len(cardUID) != models.CardUIDLength {
		return "", ErrInvalidCardUID
	}
	for _, c := range cardUID {
		if !isHexDigit(c) {
			return "", ErrInvalidCardUID
		}
	}
	return strings.ToLower(cardUID), nil
}

// GenerateCompanyToken derives the 15-symbol merchant token from the
// company name: SHA-256 the name, then peel off base-12 digits of the
// digest into the 0-9#* alphabet. Deterministic, so the token is a
// derived identifier rather than a secret.
func GenerateCompanyToken(name string) string {
	sum := sha256.Sum256([]byte(name))
	value := new(big.Int).SetBytes(sum[:])
	base := big.NewInt(int64(len(companyTokenAlphabet)))
	mod := new(big.Int)

	token := make([]byte, models.CompanyTokenLength)
	for i := range token {
		value.DivMod(value, base, mod)
		token[i] = companyTokenAlphabet[mod.Int64()]
	}
	return string(token)
}

// CardIssuer allocates cards with collision-free identifiers.
type CardIssuer struct {
	db *sql.DB
}

func NewCardIssuer(db *sql.DB) *CardIssuer {
	return &CardIssuer{db: db}
}

// IssueCard inserts a new zero-balance card for the owner. The 16-digit
// card number is drawn at random and the insert retried on a uniqueness
// collision, up to cardNumberAttempts; a collision on the card UID means
// the physical tag is already registered and is not retried.
func (ci *CardIssuer) IssueCard(ctx context.Context, ownerID int, cardUID, pinCode string) (*models.Card, error) {
	uid, err := ValidateCardUID(cardUID)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		CVV:     GenerateCVV(),
		CardUID: uid,
		OwnerID: ownerID,
		PinCode: pinCode,
	}

	for attempt := 1; attempt <= cardNumberAttempts; attempt++ {
		card.CardNumber = randomDigits(models.CardNumberLength)

		err := ci.db.QueryRowContext(ctx, `
			INSERT INTO cards (card_number, cvv, card_uid, balance, version, owner_id, pin_code, created_at, updated_at)
			VALUES ($1, $2, $3, 0, 1, $4, $5, NOW(), NOW())
			RETURNING id, balance, created_at`,
			card.CardNumber, card.CVV, card.CardUID, card.OwnerID, card.PinCode,
		).Scan(&card.ID, &card.Balance, &card.CreatedAt)
		if err == nil {
			return card, nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "card_uid") {
				return nil, ErrCardUIDTaken
			}
			log.Printf("[CARDGEN] Card number collision on attempt %d/%d", attempt, cardNumberAttempts)
			continue
		}
		return nil, err
	}

	return nil, ErrCardNumberExhausted
}

func randomDigits(n int) string {
	const digits = "0123456789"
	ten := big.NewInt(10)
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, ten)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken.
			panic(err)
		}
		b[i] = digits[v.Int64()]
	}
	return string(b)
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
