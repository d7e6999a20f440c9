// Package billing reports metered search usage to the external billing
// collaborator, either directly over HTTP or through Kafka and the usage relay.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rxlocator/platform/pkg/common/models"
)

// EventType tags usage events on the bus.
const EventType = "search.usage"

// UsageEvent is one billable unit. ID doubles as the idempotency key.
type UsageEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Endpoint    string    `json:"endpoint"`
	Units       int       `json:"units"`
	ResultCount int       `json:"resultCount"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Reporter accepts one usage increment.
type Reporter interface {
	ReportUsage(ctx context.Context, e UsageEvent) error
}

// NopReporter drops every event.
type NopReporter struct{}

func (NopReporter) ReportUsage(context.Context, UsageEvent) error { return nil }

// Data converts the event into the generic event payload.
func (e UsageEvent) Data() (map[string]interface{}, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// FromEvent decodes a usage event from a bus envelope.
func FromEvent(ev models.Event) (UsageEvent, error) {
	if ev.Type != EventType {
		return UsageEvent{}, fmt.Errorf("unexpected event type %q", ev.Type)
	}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return UsageEvent{}, err
	}
	var e UsageEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return UsageEvent{}, fmt.Errorf("decode usage event: %w", err)
	}
	if e.ID == "" || e.UserID == "" {
		return UsageEvent{}, fmt.Errorf("usage event %s is missing id or user", ev.ID)
	}
	return e, nil
}
