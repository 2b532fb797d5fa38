package domain

import "github.com/shopspring/decimal"

// LineItem is one cart entry. UnitPrice is frozen when the item is first added.
type LineItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"imageRef"`
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is an ordered list of line items keyed by product id.
// Transition methods return a new Cart and leave the receiver untouched.
type Cart struct {
	Items []LineItem
}

func NewCart(items []LineItem) Cart {
	return Cart{Items: append([]LineItem(nil), items...)}
}

func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c Cart) Find(id int64) (LineItem, bool) {
	for _, item := range c.Items {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

// WithAdded increases the quantity of an existing line or appends a new one
// priced at the product's retail price. Non-positive quantities are ignored.
func (c Cart) WithAdded(p Product, quantity int) Cart {
	if quantity <= 0 {
		return c.clone()
	}
	next := c.clone()
	for i := range next.Items {
		if next.Items[i].ID == p.ID {
			next.Items[i].Quantity += quantity
			return next
		}
	}
	next.Items = append(next.Items, LineItem{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.RetailPrice,
		Quantity:  quantity,
		ImageRef:  p.PrimaryImage(),
	})
	return next
}

// WithQuantity replaces the quantity of the matching line. A quantity of
// zero or less removes the line.
func (c Cart) WithQuantity(id int64, quantity int) Cart {
	if quantity <= 0 {
		return c.Without(id)
	}
	next := c.clone()
	for i := range next.Items {
		if next.Items[i].ID == id {
			next.Items[i].Quantity = quantity
			break
		}
	}
	return next
}

func (c Cart) Without(id int64) Cart {
	next := Cart{Items: make([]LineItem, 0, len(c.Items))}
	for _, item := range c.Items {
		if item.ID != id {
			next.Items = append(next.Items, item)
		}
	}
	return next
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

func (c Cart) clone() Cart {
	return Cart{Items: append(make([]LineItem, 0, len(c.Items)+1), c.Items...)}
}
