package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rxlocator/platform/pkg/common/logger"
	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer writes usage events synchronously so the caller learns about a
// failed publish before it answers the request.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}}
}

// PublishEvent wraps data in an Event envelope. key selects the partition;
// events sharing a key stay ordered. An empty key falls back to the event id.
func (p *Producer) PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error {
	msg, event, err := buildMessage(eventType, source, key, data, time.Now())
	if err != nil {
		return err
	}

	entry := logger.Log.WithFields(logrus.Fields{
		"event_id": event.ID,
		"type":     eventType,
		"topic":    p.w.Topic,
	})
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		entry.WithError(err).Error("Publish failed")
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	entry.Debug("Published")
	return nil
}

func buildMessage(eventType, source, key string, data map[string]interface{}, now time.Time) (kafka.Message, models.Event, error) {
	event := models.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: now.UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, event, fmt.Errorf("encode event: %w", err)
	}
	if key == "" {
		key = event.ID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "source", Value: []byte(source)},
		},
	}
	return msg, event, nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}
