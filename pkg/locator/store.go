package locator

import (
	"context"
	"time"

	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/geo"
	"gorm.io/datatypes"
)

// Session is the set of reads one request performs on a single pooled
// connection. Implementations return the package sentinels for missing rows
// and raw driver errors otherwise.
type Session interface {
	LocationLookup
	LookupZip(ctx context.Context, zip string) (geo.Centroid, error)
	// Profile returns a profile with an empty tier when no row exists.
	Profile(ctx context.Context, userID string) (models.Profile, error)
	Count(ctx context.Context, p Plan) (int64, error)
	Page(ctx context.Context, p Plan) ([]ProviderRow, error)
	Provider(ctx context.Context, npi int64) (ProviderRow, error)
}

// Store owns the connection pool.
type Store interface {
	Dialect() Dialect
	// Session holds one connection for the duration of fn and releases it on
	// every return path, including ctx cancellation.
	Session(ctx context.Context, fn func(Session) error) error
	AuditWriter
	Ping(ctx context.Context) error
}

// AuditWriter persists usage audit rows outside any request transaction.
type AuditWriter interface {
	InsertUsage(ctx context.Context, e AuditEntry) error
}

// AuditEntry is one usage_audit_logs row.
type AuditEntry struct {
	ID          string         `gorm:"column:id;primaryKey"`
	UserID      string         `gorm:"column:user_id"`
	Endpoint    string         `gorm:"column:endpoint"`
	Filters     datatypes.JSON `gorm:"column:filters"`
	ResultCount int            `gorm:"column:result_count"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}

func (AuditEntry) TableName() string { return "usage_audit_logs" }

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
