package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/chat"
	"github.com/fjod/go_cart/storefront/internal/metrics"
)

type RouterConfig struct {
	Products       catalog.ProductReader
	Carts          SessionCarts
	Sender         chat.Sender
	Metrics        *metrics.Registry
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	productHandler := NewProductHandler(cfg.Products, cfg.Sender, cfg.Metrics, cfg.Logger, cfg.RequestTimeout)
	cartHandler := NewCartHandler(cfg.Carts, cfg.Products, cfg.Logger, cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/{product_id}", productHandler.Get)
			r.Get("/{product_id}/quote", productHandler.Quote)
			r.Get("/{product_id}/inquiry", productHandler.Inquiry)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Use(SessionMiddleware)
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Post("/order", cartHandler.SubmitOrder)
		})
	})

	return r
}
