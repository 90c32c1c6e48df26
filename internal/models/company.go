package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Company is a merchant credited by settlements. The company token is
// derived deterministically from the name; it identifies the merchant at
// the terminal but is NOT a credential, since anyone who knows the public
// name can reconstruct it.
type Company struct {
	ID           int             `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	CompanyToken string          `json:"company_token" db:"company_token"`
	Balance      decimal.Decimal `json:"balance" db:"balance"`
	Version      int             `json:"version" db:"version"`
	Country      string          `json:"country" db:"country"`
	City         string          `json:"city" db:"city"`
	Street       string          `json:"street" db:"street"`
	Building     string          `json:"building" db:"building"`
	HotlinePhone string          `json:"hotline_phone" db:"hotline_phone"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

const CompanyTokenLength = 15

// Address renders the postal address for receipt headers.
func (c *Company) Address() string {
	return fmt.Sprintf("%s, %s, %s %s", c.Country, c.City, c.Street, c.Building)
}
