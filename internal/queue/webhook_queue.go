// Package queue moves webhook payloads through Kafka so the callback can
// answer immediately and the sync work runs in a consumer.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/service"
	"moysklad_sync/pkg/moysklad"
)

// Envelope is the message value written to the topic.
type Envelope struct {
	Events     []moysklad.WebhookEvent `json:"events"`
	ReceivedAt time.Time               `json:"received_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventHandler processes one decoded payload.
type EventHandler interface {
	HandleEvents(ctx context.Context, events []moysklad.WebhookEvent) (*service.WebhookResult, error)
}

// ==================== Publisher ====================

type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewPublisher(cfg config.KafkaConfig) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		now: time.Now,
	}
}

// Publish writes the events as one message keyed by the first entity id, so
// notifications for the same entity stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, events []moysklad.WebhookEvent) error {
	if len(events) == 0 {
		return nil
	}
	value, err := json.Marshal(Envelope{Events: events, ReceivedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode webhook envelope: %w", err)
	}
	msg := kafka.Message{Key: []byte(events[0].ID()), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish webhook: %w", err)
	}
	logger.Log.Debug("[Queue] webhook published", zap.Int("events", len(events)))
	return nil
}

func (p *Publisher) Close() error { return p.writer.Close() }

// ==================== Consumer ====================

type Consumer struct {
	reader  messageReader
	handler EventHandler
}

func NewConsumer(cfg config.KafkaConfig, handler EventHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        cfg.GroupID,
			Topic:          cfg.Topic,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			CommitInterval: 0,
		}),
		handler: handler,
	}
}

// Run consumes until ctx is cancelled. Every message is committed after one
// processing attempt; failures are logged, not redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	logger.Log.Info("[Queue] webhook consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Log.Info("[Queue] webhook consumer stopped")
				return nil
			}
			logger.Log.Error("[Queue] fetch failed", zap.Error(err))
			return err
		}

		if err := c.process(ctx, msg); err != nil {
			logger.Log.Error("[Queue] webhook processing failed",
				zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Log.Warn("[Queue] commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return fmt.Errorf("decode webhook envelope: %w", err)
	}
	res, err := c.handler.HandleEvents(ctx, env.Events)
	switch {
	case errors.Is(err, service.ErrUnhandledWebhook), errors.Is(err, service.ErrWebhookDisabled):
		logger.Log.Info("[Queue] webhook dropped", zap.Error(err))
		return nil
	case err != nil:
		return err
	}
	logger.Log.Info("[Queue] webhook processed",
		zap.Duration("lag", time.Since(env.ReceivedAt)), zap.String("result", res.Message))
	return nil
}

func (c *Consumer) Close() error { return c.reader.Close() }
