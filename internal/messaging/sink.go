// Package messaging hands finished orders to the external chat channel.
// Delivery is never confirmed: once a sink accepts a handoff the order is
// considered sent.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const HandoffTopic = "order-handoff"

type Handoff struct {
	OrderID   string          `json:"order_id"`
	SessionID string          `json:"session_id"`
	Link      string          `json:"link"`
	Message   string          `json:"message"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	CreatedAt time.Time       `json:"created_at"`
}

type Sink interface {
	Open(ctx context.Context, h Handoff) error
}

// LogSink only records the link. The HTTP client performs the navigation.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Open(_ context.Context, h Handoff) error {
	s.logger.Info("order handed off",
		zap.String("order_id", h.OrderID),
		zap.String("session_id", h.SessionID),
		zap.Int("item_count", h.ItemCount),
		zap.String("total", h.Total.String()),
		zap.String("link", h.Link))
	return nil
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  HandoffTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// KafkaSink publishes each handoff so a fulfilment worker can deliver it.
type KafkaSink struct {
	writer MessageWriter
	logger *zap.Logger
}

func NewKafkaSink(writer MessageWriter, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, logger: logger}
}

func (s *KafkaSink) Open(ctx context.Context, h Handoff) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal handoff: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(h.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("order_handoff")},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error("failed to publish handoff", zap.String("order_id", h.OrderID), zap.Error(err))
		return fmt.Errorf("publish handoff: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.writer.Close() }
