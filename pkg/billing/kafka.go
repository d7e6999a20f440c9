package billing

import (
	"context"

	"github.com/rxlocator/platform/pkg/observability/metrics"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error
}

// KafkaReporter publishes usage events for the relay to forward.
type KafkaReporter struct {
	publisher Publisher
	source    string
}

func NewKafkaReporter(p Publisher, source string) *KafkaReporter {
	return &KafkaReporter{publisher: p, source: source}
}

func (r *KafkaReporter) ReportUsage(ctx context.Context, e UsageEvent) error {
	data, err := e.Data()
	if err != nil {
		return err
	}
	if err := r.publisher.PublishEvent(ctx, EventType, r.source, e.UserID, data); err != nil {
		return err
	}
	metrics.ObserveUsagePublished()
	return nil
}
