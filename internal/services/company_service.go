package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/lib/pq"

	"github.com/ecoreceipt/backend/internal/models"
)

// CompanyService registers merchants and derives their terminal tokens.
type CompanyService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewCompanyService(db *sql.DB) *CompanyService {
	return &CompanyService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// Register creates a merchant with a zero balance and its name-derived
// terminal token. Company names are unique; so are the tokens derived
// from them.
func (cs *CompanyService) Register(ctx context.Context, company *models.Company) (*models.Company, error) {
	company.CompanyToken = GenerateCompanyToken(company.Name)

	err := cs.db.QueryRowContext(ctx, `
		INSERT INTO companies
		(name, company_token, balance, version, country, city, street, building, hotline_phone, created_at, updated_at)
		VALUES ($1, $2, 0, 1, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, balance, created_at`,
		company.Name, company.CompanyToken,
		company.Country, company.City, company.Street, company.Building, company.HotlinePhone,
	).Scan(&company.ID, &company.Balance, &company.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrCompanyExists
		}
		return nil, err
	}

	log.Printf("[COMPANIES] Company %d (%s) registered", company.ID, company.Name)
	return company, nil
}

// RegisterCompanyRequest carries merchant onboarding data.
type RegisterCompanyRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=128"`
	Country      string `json:"country" validate:"required"`
	City         string `json:"city" validate:"required"`
	Street       string `json:"street" validate:"required"`
	Building     string `json:"building" validate:"required"`
	HotlinePhone string `json:"hotline_phone" validate:"required,e164"`
}

// RegisterCompany onboards a merchant
// @Summary Register a company
// @Tags companies
// @Accept json
// @Produce json
// @Param request body RegisterCompanyRequest true "Company data"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /companies/register [post]
func (cs *CompanyService) RegisterCompany(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterCompanyRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := cs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	company, err := cs.Register(r.Context(), &models.Company{
		Name:         req.Name,
		Country:      req.Country,
		City:         req.City,
		Street:       req.Street,
		Building:     req.Building,
		HotlinePhone: req.HotlinePhone,
	})
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"name":          company.Name,
		"company_token": company.CompanyToken,
	})
}
