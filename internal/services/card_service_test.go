package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ecoreceipt/backend/internal/models"
)

func TestCardService_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCardService(db, nil)

	t.Run("owner reads own balance", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance, owner_id FROM cards WHERE card_uid = \\$1").
			WithArgs("04a1b2c3").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "owner_id"}).AddRow("42.50", 5))

		balance, err := service.GetBalance(context.Background(), 5, models.RoleUser, "04A1B2C3")
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("42.50")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin reads any balance", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance, owner_id FROM cards WHERE card_uid = \\$1").
			WithArgs("04a1b2c3").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "owner_id"}).AddRow("42.50", 5))

		balance, err := service.GetBalance(context.Background(), 99, models.RoleAdmin, "04a1b2c3")
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("42.50")))
	})

	t.Run("stranger is refused", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance, owner_id FROM cards WHERE card_uid = \\$1").
			WithArgs("04a1b2c3").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "owner_id"}).AddRow("42.50", 5))

		_, err := service.GetBalance(context.Background(), 6, models.RoleUser, "04a1b2c3")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown card", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance, owner_id FROM cards WHERE card_uid = \\$1").
			WithArgs("deadbeef").
			WillReturnError(sql.ErrNoRows)

		_, err := service.GetBalance(context.Background(), 5, models.RoleUser, "deadbeef")
		assert.ErrorIs(t, err, ErrCardNotFound)
	})

	t.Run("malformed UID rejected before query", func(t *testing.T) {
		_, err := service.GetBalance(context.Background(), 5, models.RoleUser, "nope")
		assert.ErrorIs(t, err, ErrInvalidCardUID)
	})
}

func TestCardService_RegisterCard(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCardService(db, nil)

	t.Run("issues card and returns number and cvv", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO cards").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "04a1b2c3", 5, "1234").
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "created_at"}).
				AddRow(1, "0.00", time.Now()))

		body, _ := json.Marshal(map[string]string{"card_uid": "04a1b2c3", "pin_code": "1234"})
		req := httptest.NewRequest(http.MethodPost, "/cards/register", bytes.NewReader(body))
		req = req.WithContext(context.WithValue(req.Context(), "profileID", 5))
		rec := httptest.NewRecorder()

		service.RegisterCard(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Len(t, resp["card_number"], models.CardNumberLength)
		assert.Len(t, resp["cvv"], models.CVVLength)
		assert.Equal(t, "0.00", resp["balance"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires authentication context", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"card_uid": "04a1b2c3", "pin_code": "1234"})
		req := httptest.NewRequest(http.MethodPost, "/cards/register", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		service.RegisterCard(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"card_uid": "04a1b2c3", "pin_code": "12"})
		req := httptest.NewRequest(http.MethodPost, "/cards/register", bytes.NewReader(body))
		req = req.WithContext(context.WithValue(req.Context(), "profileID", 5))
		rec := httptest.NewRecorder()

		service.RegisterCard(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/cards/register",
			bytes.NewReader([]byte(`{"card_uid":"04a1b2c3","pin_code":"1234","extra":true}`)))
		req = req.WithContext(context.WithValue(req.Context(), "profileID", 5))
		rec := httptest.NewRecorder()

		service.RegisterCard(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
