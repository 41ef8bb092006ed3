package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePlaces is the number of decimal places prices are stored and rendered with.
const PricePlaces = 2

// Category represents a product category in the system.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Product represents a product in the catalog.
// Category is populated on reads; writes only look at CategoryID.
type Product struct {
	ID          int64           `json:"id"`
	CategoryID  int64           `json:"category_id"`
	Category    *Category       `json:"category,omitempty"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FormatPrice renders an amount in its fixed two-decimal string form ("10.00").
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(PricePlaces)
}
