package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/chat"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/messaging"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/store"
)

type CatalogMock struct {
	products []*domain.Product
	err      error
}

func (c CatalogMock) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, p := range c.products {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (c CatalogMock) ListProducts(context.Context) ([]*domain.Product, error) {
	return c.products, c.err
}

type SinkMock struct {
	handoffs []messaging.Handoff
	err      error
}

func (s *SinkMock) Open(_ context.Context, h messaging.Handoff) error {
	if s.err != nil {
		return s.err
	}
	s.handoffs = append(s.handoffs, h)
	return nil
}

func termo() *domain.Product {
	return &domain.Product{
		ID:          1,
		Name:        "Termo",
		RetailPrice: decimal.NewFromInt(100),
		Images:      []string{"/img/termo.jpg"},
		WholesaleTiers: []domain.WholesaleTier{
			{MinQuantity: 6, UnitPrice: decimal.NewFromInt(90), Discount: "10%"},
			{MinQuantity: 12, UnitPrice: decimal.NewFromInt(80), Discount: "20%"},
		},
	}
}

type testServer struct {
	handler  http.Handler
	registry *cart.Registry
	kv       *store.MemoryKV
	sink     *SinkMock
	metrics  *metrics.Registry
}

func newTestServer(t *testing.T, products CatalogMock) *testServer {
	t.Helper()
	s := &testServer{
		kv:      store.NewMemoryKV(),
		sink:    &SinkMock{},
		metrics: metrics.NewRegistry(),
	}
	sender := chat.Sender{Recipient: "5491100000000"}
	s.registry = cart.NewRegistry(cart.Options{
		Mirror:  store.NewCartMirror(s.kv),
		Sink:    s.sink,
		Sender:  sender,
		Metrics: s.metrics,
		Logger:  zap.NewNop(),
	})
	s.handler = NewRouter(RouterConfig{
		Products:       products,
		Carts:          s.registry,
		Sender:         sender,
		Metrics:        s.metrics,
		Logger:         zap.NewNop(),
		RequestTimeout: 5 * time.Second,
	})
	return s
}

func (s *testServer) do(method, target, session string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	request := httptest.NewRequest(method, target, &buf)
	if session != "" {
		request.Header.Set(SessionHeader, session)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, CatalogMock{})

	recorder := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestListProducts_Success(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})

	recorder := s.do(http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decode[ProductsResponse](t, recorder)
	require.Len(t, response.Products, 1)
	assert.Equal(t, "Termo", response.Products[0].Name)
	assert.Len(t, response.Products[0].WholesaleTiers, 2)
}

func TestListProducts_CatalogError(t *testing.T) {
	s := newTestServer(t, CatalogMock{err: errors.New("database is locked")})

	recorder := s.do(http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, "internal_error", decode[ErrorResponse](t, recorder).Code)
}

func TestGetProduct_Errors(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})

	recorder := s.do(http.MethodGet, "/api/v1/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "invalid_product_id", decode[ErrorResponse](t, recorder).Code)

	recorder = s.do(http.MethodGet, "/api/v1/products/9", "", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "product_not_found", decode[ErrorResponse](t, recorder).Code)
}

func TestQuote(t *testing.T) {
	tests := []struct {
		quantity  string
		unit      int64
		total     int64
		discount  string
		wholesale bool
	}{
		{"1", 100, 100, "", false},
		{"6", 90, 540, "10%", true},
		{"12", 80, 960, "20%", true},
		{"20", 80, 1600, "20%", true},
		{"abc", 100, 100, "", false},
		{"-3", 100, 100, "", false},
	}

	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})
	for _, tt := range tests {
		t.Run(tt.quantity, func(t *testing.T) {
			recorder := s.do(http.MethodGet, "/api/v1/products/1/quote?quantity="+url.QueryEscape(tt.quantity), "", nil)
			require.Equal(t, http.StatusOK, recorder.Code)

			response := decode[QuoteResponse](t, recorder)
			assert.True(t, decimal.NewFromInt(tt.unit).Equal(response.Quote.UnitPrice))
			assert.True(t, decimal.NewFromInt(tt.total).Equal(response.Quote.Total))
			assert.Equal(t, tt.discount, response.Quote.Discount)
			assert.Equal(t, tt.wholesale, response.Quote.Wholesale)
			assert.Equal(t, []int{6, 12, 24}, response.Presets)
			assert.Len(t, response.Tiers, 2)
		})
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(s.metrics.Quotes.WithLabelValues("wholesale")))
	assert.Equal(t, float64(3), testutil.ToFloat64(s.metrics.Quotes.WithLabelValues("retail")))
}

func TestInquiry_PresetOverridesQuantity(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})

	recorder := s.do(http.MethodGet, "/api/v1/products/1/inquiry?quantity=3&preset=12", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decode[InquiryResponse](t, recorder)
	assert.Equal(t, 12, response.Quantity)
	assert.True(t, strings.HasPrefix(response.Link, "https://api.whatsapp.com/send?phone=5491100000000&text="))
	assert.Contains(t, response.Link, "Cantidad%3A%2012%20unidades")
	assert.Contains(t, response.Link, "Precio%3A%20%24960")
}

func TestInquiry_UnknownPresetIsIgnored(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})

	recorder := s.do(http.MethodGet, "/api/v1/products/1/inquiry?quantity=3&preset=7", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 3, decode[InquiryResponse](t, recorder).Quantity)
}

func TestCart_IssuesSessionCookie(t *testing.T) {
	s := newTestServer(t, CatalogMock{})

	recorder := s.do(http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)

	response := decode[CartResponse](t, recorder)
	assert.Equal(t, cookies[0].Value, response.SessionID)
	assert.Empty(t, response.Items)
	assert.True(t, response.Total.IsZero())
}

func TestGetCart_DoesNotActivateSession(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})

	recorder := s.do(http.MethodGet, "/api/v1/cart", "visitor", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	response := decode[CartResponse](t, recorder)
	assert.Equal(t, "visitor", response.SessionID)
	assert.NotNil(t, response.Items)
	assert.Empty(t, response.Items)
	assert.Equal(t, 0, s.registry.Active())

	s.do(http.MethodPost, "/api/v1/cart/items", "buyer", AddItemRequestDTO{ProductID: 1, Quantity: 3})
	s.registry.Release("buyer")

	recorder = s.do(http.MethodGet, "/api/v1/cart", "buyer", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 3, decode[CartResponse](t, recorder).ItemCount)
	assert.Equal(t, 0, s.registry.Active())
}

func TestCart_SessionFromCookie(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})
	s.do(http.MethodPost, "/api/v1/cart/items", "abc", AddItemRequestDTO{ProductID: 1, Quantity: 2})

	request := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	request.AddCookie(&http.Cookie{Name: SessionCookie, Value: "abc"})
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Result().Cookies())
	assert.Equal(t, 2, decode[CartResponse](t, recorder).ItemCount)
}

func TestAddItem_SumsQuantitiesAndPersists(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})

	recorder := s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 3})
	require.Equal(t, http.StatusCreated, recorder.Code)
	recorder = s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 2})
	require.Equal(t, http.StatusCreated, recorder.Code)

	response := decode[CartResponse](t, recorder)
	require.Len(t, response.Items, 1)
	assert.Equal(t, 5, response.Items[0].Quantity)
	assert.Equal(t, "/img/termo.jpg", response.Items[0].ImageRef)
	assert.True(t, decimal.NewFromInt(500).Equal(response.Total))

	persisted, err := s.kv.Get(context.Background(), store.Key("s1"))
	require.NoError(t, err)
	assert.Contains(t, string(persisted), `"quantity":5`)
}

func TestAddItem_Errors(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})

	request := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("{"))
	request.Header.Set(SessionHeader, "s1")
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, recorder).Code)

	recorder = s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 0, Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 42, Quantity: 1})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAddItem_NonPositiveQuantityLeavesCartUnchanged(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})

	recorder := s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1})
	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.Empty(t, decode[CartResponse](t, recorder).Items)

	s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 2})
	recorder = s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: -5})
	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, 2, decode[CartResponse](t, recorder).ItemCount)
}

func TestUpdateQuantity(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})
	s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 3})

	recorder := s.do(http.MethodPut, "/api/v1/cart/items/1", "s1", UpdateQuantityRequestDTO{Quantity: 10})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 10, decode[CartResponse](t, recorder).ItemCount)

	recorder = s.do(http.MethodPut, "/api/v1/cart/items/1", "s1", UpdateQuantityRequestDTO{Quantity: 0})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, decode[CartResponse](t, recorder).Items)
}

func TestRemoveItem(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})
	s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 3})

	recorder := s.do(http.MethodDelete, "/api/v1/cart/items/1", "s1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 0, decode[CartResponse](t, recorder).ItemCount)

	recorder = s.do(http.MethodDelete, "/api/v1/cart/items/x", "s1", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestClearCart_RequiresConfirmation(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})
	s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 3})

	recorder := s.do(http.MethodDelete, "/api/v1/cart", "s1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	response := decode[ClearResponse](t, recorder)
	assert.False(t, response.Cleared)
	assert.Equal(t, cart.ClearPrompt, response.Prompt)

	recorder = s.do(http.MethodGet, "/api/v1/cart", "s1", nil)
	assert.Equal(t, 3, decode[CartResponse](t, recorder).ItemCount)

	recorder = s.do(http.MethodDelete, "/api/v1/cart?confirm=true", "s1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, decode[ClearResponse](t, recorder).Cleared)

	recorder = s.do(http.MethodGet, "/api/v1/cart", "s1", nil)
	assert.Equal(t, 0, decode[CartResponse](t, recorder).ItemCount)
}

func TestSubmitOrder_EmptyCart(t *testing.T) {
	s := newTestServer(t, CatalogMock{})

	recorder := s.do(http.MethodPost, "/api/v1/cart/order", "s1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, recorder).Code)
	assert.Empty(t, s.sink.handoffs)
}

func TestSubmitOrder_Success(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})
	s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 3})

	recorder := s.do(http.MethodPost, "/api/v1/cart/order", "s1", nil)
	require.Equal(t, http.StatusCreated, recorder.Code)

	response := decode[OrderResponse](t, recorder)
	assert.NotEmpty(t, response.OrderID)
	assert.True(t, strings.HasPrefix(response.Message, "*PEDIDO MAYORISTA*"))
	assert.Contains(t, response.Message, "*TOTAL: $300*")
	assert.Contains(t, response.Link, "phone=5491100000000")

	require.Len(t, s.sink.handoffs, 1)
	assert.Equal(t, response.OrderID, s.sink.handoffs[0].OrderID)
	assert.Equal(t, "s1", s.sink.handoffs[0].SessionID)

	// the cart is kept after the handoff
	recorder = s.do(http.MethodGet, "/api/v1/cart", "s1", nil)
	assert.Equal(t, 3, decode[CartResponse](t, recorder).ItemCount)
}

func TestSubmitOrder_SinkFailure(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})
	s.sink.err = errors.New("broker down")
	s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 1})

	recorder := s.do(http.MethodPost, "/api/v1/cart/order", "s1", nil)
	assert.Equal(t, http.StatusBadGateway, recorder.Code)
	assert.Equal(t, "handoff_failed", decode[ErrorResponse](t, recorder).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, CatalogMock{products: []*domain.Product{termo()}})
	s.do(http.MethodPost, "/api/v1/cart/items", "s1", AddItemRequestDTO{ProductID: 1, Quantity: 1})

	recorder := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `cart_mutations_total{op="add"} 1`)
}
