package pricing

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/storefront/internal/chat"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Presets are the quick-pick quantities offered next to the quantity input.
var Presets = []int{6, 12, 24}

// Quote prices quantity units of p. The tier with the highest threshold not
// above quantity wins; equal thresholds go to the lower unit price, then to
// catalog order. Without a qualifying tier the retail price applies.
func Quote(p domain.Product, quantity int) domain.Quote {
	q := decimal.NewFromInt(int64(quantity))
	if tier, ok := selectTier(p.WholesaleTiers, quantity); ok {
		return domain.Quote{
			Quantity:  quantity,
			UnitPrice: tier.UnitPrice,
			Total:     tier.UnitPrice.Mul(q),
			Discount:  tier.Discount,
			Wholesale: true,
		}
	}
	return domain.Quote{
		Quantity:  quantity,
		UnitPrice: p.RetailPrice,
		Total:     p.RetailPrice.Mul(q),
	}
}

func selectTier(tiers []domain.WholesaleTier, quantity int) (domain.WholesaleTier, bool) {
	sorted := slices.Clone(tiers)
	slices.SortStableFunc(sorted, func(a, b domain.WholesaleTier) int {
		if c := cmp.Compare(b.MinQuantity, a.MinQuantity); c != 0 {
			return c
		}
		return a.UnitPrice.Cmp(b.UnitPrice)
	})
	for _, tier := range sorted {
		if quantity >= tier.MinQuantity {
			return tier, true
		}
	}
	return domain.WholesaleTier{}, false
}

// ParseQuantity reads the leading integer of raw, the way a browser number
// input is parsed. Anything that does not yield a positive number becomes 1.
func ParseQuantity(raw string) int {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 1
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

type TierRow struct {
	domain.WholesaleTier
	Reached bool `json:"reached"`
}

// Calculator holds the quantity picked for one product.
type Calculator struct {
	product  domain.Product
	sender   chat.Sender
	quantity int
}

func NewCalculator(p domain.Product, sender chat.Sender) *Calculator {
	return &Calculator{product: p, sender: sender, quantity: 1}
}

func (c *Calculator) Quantity() int { return c.quantity }

func (c *Calculator) SetQuantity(n int) {
	c.quantity = max(1, n)
}

func (c *Calculator) SetQuantityInput(raw string) {
	c.quantity = ParseQuantity(raw)
}

func (c *Calculator) Increment() { c.quantity++ }

func (c *Calculator) Decrement() { c.SetQuantity(c.quantity - 1) }

// QuickSetQuantity applies one of Presets. Unknown values are ignored.
func (c *Calculator) QuickSetQuantity(preset int) bool {
	if !slices.Contains(Presets, preset) {
		return false
	}
	c.quantity = preset
	return true
}

func (c *Calculator) Quote() domain.Quote {
	return Quote(c.product, c.quantity)
}

// TierTable lists the tiers in catalog order, flagging those the current
// quantity reaches.
func (c *Calculator) TierTable() []TierRow {
	rows := make([]TierRow, 0, len(c.product.WholesaleTiers))
	for _, tier := range c.product.WholesaleTiers {
		rows = append(rows, TierRow{WholesaleTier: tier, Reached: c.quantity >= tier.MinQuantity})
	}
	return rows
}

// BuildInquiryLink returns the pre-filled chat link for the current quote.
// It has no side effects; the caller decides when to navigate.
func (c *Calculator) BuildInquiryLink() string {
	q := c.Quote()
	return c.sender.Link(chat.InquiryMessage(c.product.Name, c.quantity, q.Total))
}
