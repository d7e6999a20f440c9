package locator

import (
	"context"
	"time"

	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/geo"
	"gorm.io/gorm"
)

// PostgresStore serves searches from PostGIS through GORM raw queries.
type PostgresStore struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewPostgresStore(db *gorm.DB, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, queryTimeout: queryTimeout}
}

func (s *PostgresStore) Dialect() Dialect { return PostGIS }

func (s *PostgresStore) Session(ctx context.Context, fn func(Session) error) error {
	return s.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		return fn(&pgSession{db: tx, timeout: s.queryTimeout})
	})
}

func (s *PostgresStore) InsertUsage(ctx context.Context, e AuditEntry) error {
	return s.db.WithContext(ctx).Create(&e).Error
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type pgSession struct {
	db      *gorm.DB
	timeout time.Duration
}

type centroidRow struct {
	ZipCode   string  `gorm:"column:zip_code"`
	Latitude  float64 `gorm:"column:latitude"`
	Longitude float64 `gorm:"column:longitude"`
	City      *string `gorm:"column:city"`
	State     *string `gorm:"column:state"`
	County    *string `gorm:"column:county"`
}

func (c centroidRow) centroid() geo.Centroid {
	return geo.Centroid{
		Zip:    c.ZipCode,
		Point:  geo.Point{Lon: c.Longitude, Lat: c.Latitude},
		City:   str(c.City),
		State:  str(c.State),
		County: str(c.County),
	}
}

type profileRow struct {
	UserID       string  `gorm:"column:user_id"`
	Email        *string `gorm:"column:email"`
	Tier         *string `gorm:"column:tier"`
	UsageMetered bool    `gorm:"column:usage_metered"`
}

func (s *pgSession) LookupZip(ctx context.Context, zip string) (geo.Centroid, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row centroidRow
	res := s.db.WithContext(qctx).Raw(
		`SELECT zip_code, latitude, longitude, city, state, county FROM zip_centroids WHERE zip_code = ?`, zip,
	).Scan(&row)
	if res.Error != nil {
		return geo.Centroid{}, res.Error
	}
	if res.RowsAffected == 0 {
		return geo.Centroid{}, ErrZipNotFound
	}
	return row.centroid(), nil
}

func (s *pgSession) Profile(ctx context.Context, userID string) (models.Profile, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row profileRow
	res := s.db.WithContext(qctx).Raw(
		`SELECT user_id, email, tier, usage_metered FROM profiles WHERE user_id = ?`, userID,
	).Scan(&row)
	if res.Error != nil {
		return models.Profile{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.Profile{UserID: userID}, nil
	}
	return models.Profile{UserID: row.UserID, Email: str(row.Email), Tier: str(row.Tier), Metered: row.UsageMetered}, nil
}

func (s *pgSession) SavedLocation(ctx context.Context, userID string, q LocationQuery) (string, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := s.db.WithContext(qctx).Table("saved_locations").Select("zip_code").Where("user_id = ?", userID)
	if q.PrimaryOnly {
		query = query.Where("is_primary = ?", true)
	} else {
		query = query.Where("label = ?", q.Label)
	}

	var zips []string
	if err := query.Limit(1).Pluck("zip_code", &zips).Error; err != nil {
		return "", err
	}
	if len(zips) == 0 {
		return "", ErrLocationNotFound
	}
	return zips[0], nil
}

func (s *pgSession) Count(ctx context.Context, p Plan) (int64, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var total int64
	if err := s.db.WithContext(qctx).Raw(p.CountSQL, p.CountArgs...).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *pgSession) Page(ctx context.Context, p Plan) ([]ProviderRow, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rows := make([]ProviderRow, 0, p.Limit)
	if err := s.db.WithContext(qctx).Raw(p.PageSQL, p.PageArgs...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *pgSession) Provider(ctx context.Context, npi int64) (ProviderRow, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row ProviderRow
	res := s.db.WithContext(qctx).Raw(providerSQL, npi).Scan(&row)
	if res.Error != nil {
		return ProviderRow{}, res.Error
	}
	if res.RowsAffected == 0 {
		return ProviderRow{}, ErrProviderNotFound
	}
	return row, nil
}
