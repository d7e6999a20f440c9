package billing

import (
	"context"
	"time"

	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/gateway/httpclient"
	"github.com/rxlocator/platform/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
)

// Relay forwards usage events from the bus to a Reporter, retrying
// transient failures. Events it cannot decode are dropped.
type Relay struct {
	reporter  Reporter
	attempts  int
	baseDelay time.Duration
	log       logrus.FieldLogger
}

func NewRelay(reporter Reporter, attempts int, baseDelay time.Duration, log logrus.FieldLogger) *Relay {
	if attempts <= 0 {
		attempts = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Relay{reporter: reporter, attempts: attempts, baseDelay: baseDelay, log: log}
}

// Handle returns an error only when the event should be redelivered.
func (r *Relay) Handle(ctx context.Context, ev models.Event) error {
	usage, err := FromEvent(ev)
	if err != nil {
		metrics.ObserveUsageRelayFailed()
		r.log.WithError(err).WithField("event_id", ev.ID).Warn("dropping malformed usage event")
		return nil
	}

	err = httpclient.Retry(ctx, r.attempts, r.baseDelay, func() error {
		return r.reporter.ReportUsage(ctx, usage)
	})
	if err != nil {
		metrics.ObserveUsageRelayFailed()
		return err
	}

	metrics.ObserveUsageRelayed()
	r.log.WithFields(logrus.Fields{"usage_id": usage.ID, "user_id": usage.UserID}).Debug("usage relayed")
	return nil
}
