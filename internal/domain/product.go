package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxProductNameLength bounds product and category names.
const MaxProductNameLength = 128

// Currency is an ISO 4217 code. The empty value means "not specified".
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
	CurrencyETB Currency = "ETB"
)

// Currencies lists the accepted currency codes.
var Currencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyJPY, CurrencyETB}

// Valid reports whether c is empty or one of Currencies.
func (c Currency) Valid() bool {
	if c == "" {
		return true
	}
	for _, known := range Currencies {
		if c == known {
			return true
		}
	}
	return false
}

// Product belongs to exactly one category and one owner.
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Rank       int             `json:"rank"`
	Currency   Currency        `json:"currency,omitempty"`
	CategoryID string          `json:"category_id"`
	OwnerID    string          `json:"owner_id"`
	Category   *CategoryRef    `json:"category,omitempty"`
	CreatedAt  time.Time       `json:"created_time"`
	UpdatedAt  time.Time       `json:"updated_time"`
}

// OwnedBy reports whether userID owns the product.
func (p *Product) OwnedBy(userID string) bool {
	return p.OwnerID == userID
}

// ProductFilter narrows a product listing. Empty fields are not applied.
type ProductFilter struct {
	CategoryID string
	OwnerID    string
	Sort       SortOptions
	Page       int
	PerPage    int
}
