package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

// SessionCarts resolves the cart of a session. Snapshot reads without
// activating the session.
type SessionCarts interface {
	Get(ctx context.Context, session string) (*cart.Manager, error)
	Snapshot(ctx context.Context, session string) (cart.Snapshot, error)
}

type CartHandler struct {
	carts    SessionCarts
	products catalog.ProductReader
	logger   *zap.Logger
	timeout  time.Duration
}

func NewCartHandler(carts SessionCarts, products catalog.ProductReader, logger *zap.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		products: products,
		logger:   logger,
		timeout:  timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	SessionID string            `json:"session_id"`
	Items     []domain.LineItem `json:"items"`
	Total     decimal.Decimal   `json:"total"`
	ItemCount int               `json:"item_count"`
}

type ClearResponse struct {
	Cleared bool   `json:"cleared"`
	Prompt  string `json:"prompt,omitempty"`
}

type OrderResponse struct {
	OrderID string `json:"order_id"`
	Link    string `json:"link"`
	Message string `json:"message"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session := getSession(r.Context())
	if session == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "missing cart session")
		return
	}

	snap, err := h.carts.Snapshot(ctx, session)
	if err != nil {
		h.logger.Error("failed to load cart", zap.String("session_id", session), zap.Error(err))
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &CartResponse{
		SessionID: snap.Session,
		Items:     snap.Items,
		Total:     snap.Total,
		ItemCount: snap.ItemCount,
	})
}

// AddItem adds a catalog product. A quantity below one leaves the cart unchanged.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	p, err := h.products.GetProduct(ctx, req.ProductID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load product", zap.Int64("product_id", req.ProductID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	m, ok := h.manager(ctx, w, r)
	if !ok {
		return
	}
	if err := m.AddItem(ctx, *p, req.Quantity); err != nil {
		h.storageError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, cartResponse(m))
}

// UpdateQuantity sets an item's quantity; zero or less removes it.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	m, ok := h.manager(ctx, w, r)
	if !ok {
		return
	}
	if err := m.SetQuantity(ctx, productID, req.Quantity); err != nil {
		h.storageError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(m))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	m, ok := h.manager(ctx, w, r)
	if !ok {
		return
	}
	if err := m.RemoveItem(ctx, productID); err != nil {
		h.storageError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(m))
}

// ClearCart empties the cart only when the request carries confirm=true;
// otherwise it answers with the prompt the client should show.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, ok := h.manager(ctx, w, r)
	if !ok {
		return
	}

	confirmed := r.URL.Query().Get("confirm") == "true"
	cleared, err := m.Clear(ctx, cart.ConfirmFunc(func(context.Context, string) bool {
		return confirmed
	}))
	if err != nil {
		h.storageError(w, err)
		return
	}
	if !cleared {
		respondJSON(w, http.StatusOK, &ClearResponse{Prompt: cart.ClearPrompt})
		return
	}

	respondJSON(w, http.StatusOK, &ClearResponse{Cleared: true})
}

func (h *CartHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, ok := h.manager(ctx, w, r)
	if !ok {
		return
	}

	handoff, err := m.SubmitOrder(ctx)
	if errors.Is(err, cart.ErrEmptyCart) {
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", "cart is empty")
		return
	}
	if err != nil {
		h.logger.Error("order handoff failed", zap.String("session_id", m.Session()), zap.Error(err))
		respondError(w, http.StatusBadGateway, "handoff_failed", "could not hand off the order")
		return
	}

	respondJSON(w, http.StatusCreated, &OrderResponse{
		OrderID: handoff.OrderID,
		Link:    handoff.Link,
		Message: handoff.Message,
	})
}

func (h *CartHandler) manager(ctx context.Context, w http.ResponseWriter, r *http.Request) (*cart.Manager, bool) {
	session := getSession(r.Context())
	if session == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "missing cart session")
		return nil, false
	}

	m, err := h.carts.Get(ctx, session)
	if err != nil {
		h.logger.Error("failed to load cart", zap.String("session_id", session), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", "cart storage unavailable")
		return nil, false
	}
	return m, true
}

func (h *CartHandler) storageError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		respondError(w, http.StatusGatewayTimeout, "timeout", "cart storage timed out")
		return
	}
	respondError(w, http.StatusServiceUnavailable, "storage_unavailable", "cart storage unavailable")
}

func cartResponse(m *cart.Manager) *CartResponse {
	items := m.Items()
	if items == nil {
		items = []domain.LineItem{}
	}
	return &CartResponse{
		SessionID: m.Session(),
		Items:     items,
		Total:     m.Total(),
		ItemCount: m.ItemCount(),
	}
}
