package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func historyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"public_id", "card_number", "name",
		"country", "city", "street", "building",
		"amount", "card_balance_before", "card_balance_after",
		"img_path", "created_at",
	})
}

func TestTransactionService_ListForOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)

	t.Run("returns owner history newest first", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions t").
			WithArgs(5, 10, 0).
			WillReturnRows(historyRows().
				AddRow("tx-2", "1234567890123456", "Coffee Mug",
					"NL", "Amsterdam", "Damrak", "1",
					"10.00", "100.00", "90.00", "static/receipts/a.png", time.Now()).
				AddRow("tx-1", "1234567890123456", "Book Nook",
					"NL", "Utrecht", "Oudegracht", "12",
					"5.00", "105.00", "100.00", "", time.Now()))

		transactions, err := service.ListForOwner(context.Background(), 5, 10, 0)
		assert.NoError(t, err)
		assert.Len(t, transactions, 2)
		assert.Equal(t, "tx-2", transactions[0].TransactionID)
		assert.Equal(t, "NL, Amsterdam, Damrak 1", transactions[0].CompanyAddress)
		assert.True(t, transactions[1].CardBalanceAfter.Equal(decimal.RequireFromString("100.00")))
		assert.Empty(t, transactions[1].ReceiptImg)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty history yields empty slice", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions t").
			WithArgs(6, 10, 0).
			WillReturnRows(historyRows())

		transactions, err := service.ListForOwner(context.Background(), 6, 10, 0)
		assert.NoError(t, err)
		assert.NotNil(t, transactions)
		assert.Empty(t, transactions)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionService_GetUserTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)

	t.Run("requires authentication context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
		rec := httptest.NewRecorder()

		service.GetUserTransactions(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("caps page size and defaults offset", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions t").
			WithArgs(5, maxHistoryLimit, 0).
			WillReturnRows(historyRows())

		req := httptest.NewRequest(http.MethodGet, "/transactions?limit=5000", nil)
		req = req.WithContext(context.WithValue(req.Context(), "profileID", 5))
		rec := httptest.NewRecorder()

		service.GetUserTransactions(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["success"])
		assert.EqualValues(t, maxHistoryLimit, body["limit"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("passes limit and offset through", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions t").
			WithArgs(5, 20, 40).
			WillReturnRows(historyRows())

		req := httptest.NewRequest(http.MethodGet, "/transactions?limit=20&offset=40", nil)
		req = req.WithContext(context.WithValue(req.Context(), "profileID", 5))
		rec := httptest.NewRecorder()

		service.GetUserTransactions(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
