package billing

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rxlocator/platform/pkg/common/logger"
	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/gateway/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReporter struct {
	errs  []error
	calls int
}

func (s *scriptedReporter) ReportUsage(context.Context, UsageEvent) error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func usageEnvelope(t *testing.T) models.Event {
	t.Helper()
	data, err := sampleEvent().Data()
	require.NoError(t, err)
	return models.Event{ID: "env-1", Type: EventType, Data: data}
}

func TestRelayRetriesTransientFailures(t *testing.T) {
	rep := &scriptedReporter{errs: []error{&httpclient.StatusError{Service: "billing", Code: 503}}}
	relay := NewRelay(rep, 3, time.Millisecond, logger.New("error", &bytes.Buffer{}))

	require.NoError(t, relay.Handle(context.Background(), usageEnvelope(t)))
	assert.Equal(t, 2, rep.calls)
}

func TestRelayReturnsPermanentFailure(t *testing.T) {
	rep := &scriptedReporter{errs: []error{&httpclient.StatusError{Service: "billing", Code: 400}}}
	relay := NewRelay(rep, 3, time.Millisecond, logger.New("error", &bytes.Buffer{}))

	err := relay.Handle(context.Background(), usageEnvelope(t))
	require.Error(t, err)
	assert.Equal(t, 1, rep.calls)
}

func TestRelayDropsMalformedEvents(t *testing.T) {
	rep := &scriptedReporter{errs: []error{errors.New("unreachable")}}
	relay := NewRelay(rep, 3, time.Millisecond, logger.New("error", &bytes.Buffer{}))

	assert.NoError(t, relay.Handle(context.Background(), models.Event{ID: "x", Type: "ingestion.completed"}))
	assert.Zero(t, rep.calls)
}
