package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/chat"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/pricing"
)

type ProductHandler struct {
	products catalog.ProductReader
	sender   chat.Sender
	metrics  *metrics.Registry
	logger   *zap.Logger
	timeout  time.Duration
}

func NewProductHandler(products catalog.ProductReader, sender chat.Sender, m *metrics.Registry, logger *zap.Logger, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		products: products,
		sender:   sender,
		metrics:  m,
		logger:   logger,
		timeout:  timeout,
	}
}

type ProductsResponse struct {
	Products []*domain.Product `json:"products"`
}

type QuoteResponse struct {
	ProductID int64             `json:"product_id"`
	Quote     domain.Quote      `json:"quote"`
	Tiers     []pricing.TierRow `json:"tiers"`
	Presets   []int             `json:"presets"`
}

type InquiryResponse struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Link      string `json:"link"`
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.ListProducts(ctx)
	if err != nil {
		h.logger.Error("failed to list products", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProduct(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Quote prices the quantity query parameter, which is parsed leniently.
func (h *ProductHandler) Quote(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProduct(w, r)
	if !ok {
		return
	}

	calc := pricing.NewCalculator(*p, h.sender)
	calc.SetQuantityInput(r.URL.Query().Get("quantity"))
	q := calc.Quote()
	h.countQuote(q)

	respondJSON(w, http.StatusOK, &QuoteResponse{
		ProductID: p.ID,
		Quote:     q,
		Tiers:     calc.TierTable(),
		Presets:   pricing.Presets,
	})
}

// Inquiry returns the chat link for a price question. A valid preset
// overrides the quantity parameter.
func (h *ProductHandler) Inquiry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProduct(w, r)
	if !ok {
		return
	}

	calc := pricing.NewCalculator(*p, h.sender)
	calc.SetQuantityInput(r.URL.Query().Get("quantity"))
	if preset := r.URL.Query().Get("preset"); preset != "" {
		if n, err := strconv.Atoi(preset); err == nil {
			calc.QuickSetQuantity(n)
		}
	}
	h.countQuote(calc.Quote())

	respondJSON(w, http.StatusOK, &InquiryResponse{
		ProductID: p.ID,
		Quantity:  calc.Quantity(),
		Link:      calc.BuildInquiryLink(),
	})
}

func (h *ProductHandler) loadProduct(w http.ResponseWriter, r *http.Request) (*domain.Product, bool) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.products.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load product", zap.Int64("product_id", productID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return nil, false
	}
	return p, true
}

func (h *ProductHandler) countQuote(q domain.Quote) {
	if h.metrics == nil {
		return
	}
	kind := "retail"
	if q.Wholesale {
		kind = "wholesale"
	}
	h.metrics.Quotes.WithLabelValues(kind).Inc()
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}
