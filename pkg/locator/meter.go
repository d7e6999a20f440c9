package locator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rxlocator/platform/pkg/billing"
	"github.com/rxlocator/platform/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Usage describes one successful metered request.
type Usage struct {
	UserID      string
	Endpoint    string
	Filters     map[string]interface{}
	ResultCount int
}

// Meter emits one billing unit and one audit row per metered request. It
// never returns an error; failures are logged and counted.
type Meter struct {
	reporter billing.Reporter
	audit    AuditWriter
	timeout  time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewMeter(reporter billing.Reporter, audit AuditWriter, timeout time.Duration, log logrus.FieldLogger) *Meter {
	if reporter == nil {
		reporter = billing.NopReporter{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Meter{reporter: reporter, audit: audit, timeout: timeout, log: log, now: time.Now}
}

// Record runs detached from the caller's cancellation so a client hanging up
// right after its response does not drop the unit.
func (m *Meter) Record(ctx context.Context, u Usage) {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	metrics.ObserveMetered()
	id := uuid.New().String()
	now := m.now().UTC()
	log := m.log.WithFields(logrus.Fields{
		"user_id":  u.UserID,
		"endpoint": u.Endpoint,
		"usage_id": id,
	})

	err := m.reporter.ReportUsage(ctx, billing.UsageEvent{
		ID:          id,
		UserID:      u.UserID,
		Endpoint:    u.Endpoint,
		Units:       1,
		ResultCount: u.ResultCount,
		OccurredAt:  now,
	})
	if err != nil {
		m.fail(log, "report usage", err)
	}

	if m.audit == nil {
		return
	}
	filters, err := json.Marshal(u.Filters)
	if err != nil {
		m.fail(log, "encode audit filters", err)
		filters = []byte("{}")
	}
	err = m.audit.InsertUsage(ctx, AuditEntry{
		ID:          id,
		UserID:      u.UserID,
		Endpoint:    u.Endpoint,
		Filters:     datatypes.JSON(filters),
		ResultCount: u.ResultCount,
		CreatedAt:   now,
	})
	if err != nil {
		m.fail(log, "insert usage audit", err)
	}
}

func (m *Meter) fail(log *logrus.Entry, step string, err error) {
	metrics.ObserveMeteringFailure()
	metrics.ObserveFailure(string(KindMetering))
	log.WithError(&Error{Kind: KindMetering, Message: step, Err: err}).Warn("usage metering failed")
}
