package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/storefront/internal/chat"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/messaging"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/store"
)

var ErrEmptyCart = errors.New("cart is empty")

const ClearPrompt = "¿Seguro que querés vaciar el carrito?"

// Confirmer asks the user before a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Options are the collaborators shared by every session's Manager.
type Options struct {
	Mirror  *store.CartMirror
	Sink    messaging.Sink
	Sender  chat.Sender
	Metrics *metrics.Registry
	Logger  *zap.Logger
	// IdleTimeout is how long a Registry keeps an unused session in memory.
	IdleTimeout time.Duration
}

// Manager owns one session's cart. Every mutation is written to the mirror
// before it becomes visible in memory; a failed write leaves the cart as it was.
type Manager struct {
	mu      sync.Mutex
	session string
	cart    domain.Cart
	opts    Options
}

func newManager(session string, cart domain.Cart, opts Options) *Manager {
	return &Manager{session: session, cart: cart, opts: opts}
}

func (m *Manager) Session() string { return m.session }

func (m *Manager) AddItem(ctx context.Context, p domain.Product, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commit(ctx, "add", m.cart.WithAdded(p, quantity))
}

// SetQuantity replaces an item's quantity; zero or less removes the item.
func (m *Manager) SetQuantity(ctx context.Context, id int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op := "set_quantity"
	if quantity <= 0 {
		op = "remove"
	}
	return m.commit(ctx, op, m.cart.WithQuantity(id, quantity))
}

func (m *Manager) RemoveItem(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commit(ctx, "remove", m.cart.Without(id))
}

// Clear empties the cart once confirmer agrees. It reports whether the cart
// was cleared.
func (m *Manager) Clear(ctx context.Context, confirmer Confirmer) (bool, error) {
	if confirmer == nil || !confirmer.Confirm(ctx, ClearPrompt) {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.commit(ctx, "clear", domain.Cart{}); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.Total()
}

func (m *Manager) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.ItemCount()
}

func (m *Manager) Items() []domain.LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.NewCart(m.cart.Items).Items
}

func (m *Manager) BuildOrderMessage() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderMessage()
}

// SubmitOrder hands the order summary to the sink addressed to the store's
// recipient. The cart is kept; the customer confirms the order by chat.
// The sink runs outside the session lock.
func (m *Manager) SubmitOrder(ctx context.Context) (messaging.Handoff, error) {
	h, err := m.handoff()
	if err != nil {
		return messaging.Handoff{}, err
	}
	if err := m.opts.Sink.Open(ctx, h); err != nil {
		return h, err
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.OrdersSubmitted.Inc()
	}
	m.opts.Logger.Info("order submitted",
		zap.String("session_id", m.session),
		zap.String("order_id", h.OrderID),
		zap.Int("item_count", h.ItemCount))
	return h, nil
}

func (m *Manager) handoff() (messaging.Handoff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	text, err := m.orderMessage()
	if err != nil {
		return messaging.Handoff{}, err
	}
	return messaging.Handoff{
		OrderID:   uuid.NewString(),
		SessionID: m.session,
		Link:      m.opts.Sender.Link(text),
		Message:   text,
		Total:     m.cart.Total(),
		ItemCount: m.cart.ItemCount(),
		CreatedAt: time.Now(),
	}, nil
}

func (m *Manager) orderMessage() (string, error) {
	if m.cart.IsEmpty() {
		return "", ErrEmptyCart
	}
	return chat.OrderMessage(m.cart.Items, m.cart.Total()), nil
}

func (m *Manager) commit(ctx context.Context, op string, next domain.Cart) error {
	if err := m.opts.Mirror.Save(ctx, m.session, next); err != nil {
		m.opts.Logger.Error("cart mirror write failed",
			zap.String("session_id", m.session),
			zap.String("op", op),
			zap.Error(err))
		return err
	}
	m.cart = next
	if m.opts.Metrics != nil {
		m.opts.Metrics.CartMutations.WithLabelValues(op).Inc()
	}
	return nil
}
