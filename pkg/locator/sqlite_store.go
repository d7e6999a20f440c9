package locator

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rxlocator/platform/pkg/common/database"
	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/geo"
)

// SQLiteStore serves searches from a local SQLite file. Distances come from
// the haversine_m function registered by database.OpenSQLite.
type SQLiteStore struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func NewSQLiteStore(db *sql.DB, queryTimeout time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, queryTimeout: queryTimeout}
}

func (s *SQLiteStore) Dialect() Dialect { return SQLiteHaversine(database.HaversineFunc) }

func (s *SQLiteStore) Session(ctx context.Context, fn func(Session) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(&sqliteSession{conn: conn, timeout: s.queryTimeout})
}

func (s *SQLiteStore) InsertUsage(ctx context.Context, e AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_audit_logs (id, user_id, endpoint, filters, result_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Endpoint, string(e.Filters), e.ResultCount, e.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

type sqliteSession struct {
	conn    *sql.Conn
	timeout time.Duration
}

func (s *sqliteSession) LookupZip(ctx context.Context, zip string) (geo.Centroid, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row centroidRow
	err := s.conn.QueryRowContext(qctx,
		`SELECT zip_code, latitude, longitude, city, state, county FROM zip_centroids WHERE zip_code = ?`, zip,
	).Scan(&row.ZipCode, &row.Latitude, &row.Longitude, &row.City, &row.State, &row.County)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Centroid{}, ErrZipNotFound
	}
	if err != nil {
		return geo.Centroid{}, err
	}
	return row.centroid(), nil
}

func (s *sqliteSession) Profile(ctx context.Context, userID string) (models.Profile, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row profileRow
	err := s.conn.QueryRowContext(qctx,
		`SELECT user_id, email, tier, usage_metered FROM profiles WHERE user_id = ?`, userID,
	).Scan(&row.UserID, &row.Email, &row.Tier, &row.UsageMetered)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{UserID: userID}, nil
	}
	if err != nil {
		return models.Profile{}, err
	}
	return models.Profile{UserID: row.UserID, Email: str(row.Email), Tier: str(row.Tier), Metered: row.UsageMetered}, nil
}

func (s *sqliteSession) SavedLocation(ctx context.Context, userID string, q LocationQuery) (string, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row *sql.Row
	if q.PrimaryOnly {
		row = s.conn.QueryRowContext(qctx,
			`SELECT zip_code FROM saved_locations WHERE user_id = ? AND is_primary = 1 LIMIT 1`, userID)
	} else {
		row = s.conn.QueryRowContext(qctx,
			`SELECT zip_code FROM saved_locations WHERE user_id = ? AND label = ? LIMIT 1`, userID, q.Label)
	}

	var zip string
	err := row.Scan(&zip)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLocationNotFound
	}
	return zip, err
}

func (s *sqliteSession) Count(ctx context.Context, p Plan) (int64, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var total int64
	err := s.conn.QueryRowContext(qctx, p.CountSQL, p.CountArgs...).Scan(&total)
	return total, err
}

func (s *sqliteSession) Page(ctx context.Context, p Plan) ([]ProviderRow, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.conn.QueryContext(qctx, p.PageSQL, p.PageArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ProviderRow, 0, p.Limit)
	for rows.Next() {
		r, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteSession) Provider(ctx context.Context, npi int64) (ProviderRow, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	r, err := scanProvider(s.conn.QueryRowContext(qctx, providerSQL, npi))
	if errors.Is(err, sql.ErrNoRows) {
		return ProviderRow{}, ErrProviderNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProvider(sc scanner) (ProviderRow, error) {
	var r ProviderRow
	err := sc.Scan(
		&r.NPI, &r.FirstName, &r.LastName, &r.Credentials, &r.Classification, &r.Specialization,
		&r.AddressLine1, &r.AddressLine2, &r.City, &r.State, &r.Phone,
		&r.Latitude, &r.Longitude, &r.DistanceMeters, &r.ClaimCount,
	)
	return r, err
}
