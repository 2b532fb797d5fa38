package domain

import "github.com/shopspring/decimal"

// Quote is the pricing result for one quantity. It is derived, never stored.
type Quote struct {
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Discount  string          `json:"discount,omitempty"`
	Wholesale bool            `json:"wholesale"`
}
