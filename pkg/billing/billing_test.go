package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/gateway/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() UsageEvent {
	return UsageEvent{
		ID:          "evt-1",
		UserID:      "user-1",
		Endpoint:    "search",
		Units:       1,
		ResultCount: 2,
		OccurredAt:  time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestHTTPReporter(t *testing.T) {
	var got usageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/usage", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "evt-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewHTTPReporter(srv.URL+"/", "secret", time.Second).ReportUsage(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, 1, got.Quantity)
}

func TestHTTPReporterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPReporter(srv.URL, "", time.Second).ReportUsage(context.Background(), sampleEvent())
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.True(t, httpclient.IsRetriable(err))
}

type fakePublisher struct {
	eventType, key string
	data           map[string]interface{}
	err            error
}

func (f *fakePublisher) PublishEvent(_ context.Context, eventType, _, key string, data map[string]interface{}) error {
	f.eventType, f.key, f.data = eventType, key, data
	return f.err
}

func TestKafkaReporterRoundTrip(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewKafkaReporter(pub, "locator-service").ReportUsage(context.Background(), sampleEvent()))
	assert.Equal(t, EventType, pub.eventType)
	assert.Equal(t, "user-1", pub.key)

	decoded, err := FromEvent(models.Event{ID: "env-1", Type: pub.eventType, Data: pub.data})
	require.NoError(t, err)
	assert.Equal(t, sampleEvent(), decoded)
}

func TestKafkaReporterPropagatesError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	assert.Error(t, NewKafkaReporter(pub, "locator-service").ReportUsage(context.Background(), sampleEvent()))
}

func TestFromEventRejectsForeignEvents(t *testing.T) {
	_, err := FromEvent(models.Event{Type: "other"})
	assert.Error(t, err)
	_, err = FromEvent(models.Event{Type: EventType, Data: map[string]interface{}{"units": 1}})
	assert.Error(t, err)
}
