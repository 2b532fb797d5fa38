package domain

import "github.com/shopspring/decimal"

// WholesaleTier lowers the unit price once an order reaches MinQuantity.
type WholesaleTier struct {
	MinQuantity int             `json:"min_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    string          `json:"discount"`
}

type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	Images         []string        `json:"images"`
	WholesaleTiers []WholesaleTier `json:"wholesale_tiers"`
}

func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
