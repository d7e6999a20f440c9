package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rxlocator/platform/pkg/gateway/httpclient"
)

// HTTPReporter posts usage increments to the billing API.
type HTTPReporter struct {
	client *resty.Client
}

func NewHTTPReporter(baseURL, apiKey string, timeout time.Duration) *HTTPReporter {
	client := resty.NewWithClient(httpclient.New(timeout)).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPReporter{client: client}
}

type usageRequest struct {
	UserID    string    `json:"user_id"`
	Quantity  int       `json:"quantity"`
	Endpoint  string    `json:"endpoint"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *HTTPReporter) ReportUsage(ctx context.Context, e UsageEvent) error {
	units := e.Units
	if units <= 0 {
		units = 1
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", e.ID).
		SetBody(usageRequest{
			UserID:    e.UserID,
			Quantity:  units,
			Endpoint:  e.Endpoint,
			Timestamp: e.OccurredAt.UTC(),
		}).
		Post("/v1/usage")
	if err != nil {
		return fmt.Errorf("billing usage request: %w", err)
	}
	if resp.IsError() {
		return &httpclient.StatusError{Service: "billing", Code: resp.StatusCode()}
	}
	return nil
}
