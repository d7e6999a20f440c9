package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rxlocator/platform/pkg/common/logger"
	"github.com/rxlocator/platform/pkg/geo"
	"modernc.org/sqlite"
)

// HaversineFunc is the scalar function registered on every SQLite
// connection: haversine_m(lon1, lat1, lon2, lat2) in meters.
const HaversineFunc = "haversine_m"

var (
	registerOnce sync.Once
	registerErr  error
)

func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(HaversineFunc, 4,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				vals := make([]float64, 4)
				for i, a := range args {
					switch v := a.(type) {
					case float64:
						vals[i] = v
					case int64:
						vals[i] = float64(v)
					case nil:
						return nil, nil
					default:
						return nil, fmt.Errorf("%s: argument %d has type %T", HaversineFunc, i, a)
					}
				}
				return geo.HaversineMeters(
					geo.Point{Lon: vals[0], Lat: vals[1]},
					geo.Point{Lon: vals[2], Lat: vals[3]},
				), nil
			})
	})
	return registerErr
}

// OpenSQLite opens (and creates when missing) the local store at path.
// Use ":memory:" with maxOpen 1 for tests.
func OpenSQLite(path string, maxOpen int) (*sql.DB, error) {
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("register sqlite functions: %w", err)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys=OFF; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting sqlite pragmas: %w", err)
	}
	if err := EnsureSQLiteSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Log.WithField("path", path).Info("Opened SQLite store")
	return db, nil
}

// EnsureSQLiteSchema mirrors the Postgres migrations minus the PostGIS
// geography column; distances come from haversine_m instead.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS zip_centroids (
			zip_code TEXT PRIMARY KEY,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			city TEXT,
			state TEXT,
			county TEXT
		);
		CREATE TABLE IF NOT EXISTS providers (
			npi INTEGER PRIMARY KEY,
			first_name TEXT,
			last_name TEXT,
			credentials TEXT,
			taxonomy_classification TEXT,
			taxonomy_specialization TEXT,
			deactivation_date TEXT
		);
		CREATE TABLE IF NOT EXISTS provider_addresses (
			npi INTEGER PRIMARY KEY,
			address_line1 TEXT,
			address_line2 TEXT,
			city TEXT,
			state TEXT,
			practice_zip TEXT,
			phone TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_provider_addresses_zip ON provider_addresses(practice_zip);
		CREATE TABLE IF NOT EXISTS prescriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			npi INTEGER NOT NULL,
			drug_name TEXT NOT NULL,
			generic_name TEXT,
			total_claim_count INTEGER NOT NULL DEFAULT 0,
			state_code TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_prescriptions_npi ON prescriptions(npi);
		CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			email TEXT,
			tier TEXT,
			usage_metered INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS saved_locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			label TEXT NOT NULL,
			zip_code TEXT NOT NULL,
			is_primary INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS ux_saved_locations_user_label ON saved_locations(user_id, label);
		CREATE UNIQUE INDEX IF NOT EXISTS ux_saved_locations_user_primary ON saved_locations(user_id) WHERE is_primary = 1;
		CREATE TABLE IF NOT EXISTS usage_audit_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			filters TEXT,
			result_count INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating sqlite schema: %w", err)
	}
	return nil
}
