package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
)

const (
	AddRequestsTopic = "cart-add-requests"
	consumerGroup    = "cart-widget"
)

// AddRequest is published by product cards that want an item in a cart.
type AddRequest struct {
	SessionID string `json:"session_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type ProductGetter interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type Poller struct {
	reader   MessageReader
	products ProductGetter
	adder    cart.Adder
	metrics  *metrics.Registry
	logger   *zap.Logger
}

func NewKafkaReader(brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    AddRequestsTopic,
		GroupID:  consumerGroup,
		MaxBytes: 10e6, // 10MB
	})
}

// NewPoller wires a reader to the cart. m may be nil.
func NewPoller(reader MessageReader, products ProductGetter, adder cart.Adder, m *metrics.Registry, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		reader:   reader,
		products: products,
		adder:    adder,
		metrics:  m,
		logger:   logger,
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (p *Poller) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := p.consume(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("add-item reader closed, consumer stopping")
				return
			}
			if ctx.Err() == nil {
				p.logger.Error("error reading message", zap.Error(err))
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Error("error closing reader", zap.Error(err))
	}
}

// consume handles one message. Only read errors are returned; a message
// that cannot be applied is counted and skipped.
func (p *Poller) consume(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	outcome := "added"
	if err := p.handle(ctx, m.Value); err != nil {
		outcome = "rejected"
		p.logger.Warn("skipping add request",
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}
	if p.metrics != nil {
		p.metrics.AddEvents.WithLabelValues(outcome).Inc()
	}
	return nil
}

func (p *Poller) handle(ctx context.Context, value []byte) error {
	var req AddRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return fmt.Errorf("error parsing message: %w", err)
	}
	if req.SessionID == "" {
		return errors.New("missing session_id")
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("invalid quantity %d", req.Quantity)
	}

	product, err := p.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return fmt.Errorf("product %d: %w", req.ProductID, err)
		}
		return fmt.Errorf("failed to load product: %w", err)
	}

	if err := p.adder.AddItem(ctx, req.SessionID, *product, req.Quantity); err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}

	p.logger.Debug("item added from event",
		zap.String("session_id", req.SessionID),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity))
	return nil
}
