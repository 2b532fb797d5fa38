package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// KeyPrefix is the fixed key the cart has always been persisted under.
const KeyPrefix = "carritoMayorista"

var ErrMalformedState = errors.New("malformed cart state")

// CartMirror persists a session's cart as a JSON array of line items.
type CartMirror struct {
	kv KV
}

func NewCartMirror(kv KV) *CartMirror {
	return &CartMirror{kv: kv}
}

func Key(session string) string {
	if session == "" {
		return KeyPrefix
	}
	return KeyPrefix + ":" + session
}

// Load returns the persisted cart, an empty cart when nothing was stored, or
// ErrMalformedState when the stored value cannot be trusted.
func (m *CartMirror) Load(ctx context.Context, session string) (domain.Cart, error) {
	data, err := m.kv.Get(ctx, Key(session))
	if errors.Is(err, ErrNotFound) {
		return domain.Cart{}, nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}

	var items []domain.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return domain.Cart{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if err := validate(items); err != nil {
		return domain.Cart{}, err
	}
	return domain.NewCart(items), nil
}

func (m *CartMirror) Save(ctx context.Context, session string, cart domain.Cart) error {
	items := cart.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := m.kv.Set(ctx, Key(session), data); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Reset overwrites the session's mirror with an empty cart.
func (m *CartMirror) Reset(ctx context.Context, session string) error {
	return m.Save(ctx, session, domain.Cart{})
}

func validate(items []domain.LineItem) error {
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has quantity %d", ErrMalformedState, item.ID, item.Quantity)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: duplicate item %d", ErrMalformedState, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
