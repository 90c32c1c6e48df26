package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/ecoreceipt/backend/internal/models"
)

func TestGenerateCVV(t *testing.T) {
	for i := 0; i < 20; i++ {
		cvv := GenerateCVV()
		assert.Len(t, cvv, models.CVVLength)
		for _, c := range cvv {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
}

func TestValidateCardUID(t *testing.T) {
	t.Run("canonicalizes to lower case", func(t *testing.T) {
		uid, err := ValidateCardUID("04A1B2C3")
		assert.NoError(t, err)
		assert.Equal(t, "04a1b2c3", uid)
	})

	t.Run("accepts already canonical input", func(t *testing.T) {
		uid, err := ValidateCardUID("deadbeef")
		assert.NoError(t, err)
		assert.Equal(t, "deadbeef", uid)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		for _, input := range []string{"", "04a1", "04a1b2c3d4"} {
			_, err := ValidateCardUID(input)
			assert.ErrorIs(t, err, ErrInvalidCardUID)
		}
	})

	t.Run("rejects non-hex characters", func(t *testing.T) {
		for _, input := range []string{"04a1b2zz", "04a1b2c!", "04 1b2c3"} {
			_, err := ValidateCardUID(input)
			assert.ErrorIs(t, err, ErrInvalidCardUID)
		}
	})
}

func TestGenerateCompanyToken(t *testing.T) {
	t.Run("deterministic for the same name", func(t *testing.T) {
		assert.Equal(t, GenerateCompanyToken("Coffee Mug"), GenerateCompanyToken("Coffee Mug"))
	})

	t.Run("different names get different tokens", func(t *testing.T) {
		assert.NotEqual(t, GenerateCompanyToken("Coffee Mug"), GenerateCompanyToken("Coffee Mugs"))
	})

	t.Run("token shape", func(t *testing.T) {
		token := GenerateCompanyToken("Coffee Mug")
		assert.Len(t, token, models.CompanyTokenLength)
		for _, c := range token {
			assert.True(t, strings.ContainsRune(companyTokenAlphabet, c), "unexpected symbol %q", c)
		}
	})
}

func TestCardIssuer_IssueCard(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	issuer := NewCardIssuer(db)

	t.Run("issues a zero balance card", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO cards").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "04a1b2c3", 5, "1234").
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "created_at"}).
				AddRow(1, "0.00", time.Now()))

		card, err := issuer.IssueCard(context.Background(), 5, "04A1B2C3", "1234")
		assert.NoError(t, err)
		assert.Len(t, card.CardNumber, models.CardNumberLength)
		assert.Len(t, card.CVV, models.CVVLength)
		assert.Equal(t, "04a1b2c3", card.CardUID)
		assert.True(t, card.Balance.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries on card number collision", func(t *testing.T) {
		collision := &pq.Error{Code: "23505", Constraint: "cards_card_number_key"}

		mock.ExpectQuery("INSERT INTO cards").
			WillReturnError(collision)
		mock.ExpectQuery("INSERT INTO cards").
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "created_at"}).
				AddRow(2, "0.00", time.Now()))

		card, err := issuer.IssueCard(context.Background(), 5, "deadbeef", "1234")
		assert.NoError(t, err)
		assert.Equal(t, 2, card.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate card UID is not retried", func(t *testing.T) {
		duplicate := &pq.Error{Code: "23505", Constraint: "cards_card_uid_key"}

		mock.ExpectQuery("INSERT INTO cards").
			WillReturnError(duplicate)

		_, err := issuer.IssueCard(context.Background(), 5, "deadbeef", "1234")
		assert.ErrorIs(t, err, ErrCardUIDTaken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("surfaces exhaustion after repeated collisions", func(t *testing.T) {
		for i := 0; i < cardNumberAttempts; i++ {
			mock.ExpectQuery("INSERT INTO cards").
				WillReturnError(&pq.Error{Code: "23505", Constraint: "cards_card_number_key"})
		}

		_, err := issuer.IssueCard(context.Background(), 5, "deadbeef", "1234")
		assert.ErrorIs(t, err, ErrCardNumberExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects malformed UID before insert", func(t *testing.T) {
		_, err := issuer.IssueCard(context.Background(), 5, "nothex!!", "1234")
		assert.ErrorIs(t, err, ErrInvalidCardUID)
	})
}
