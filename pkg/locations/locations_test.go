package locations

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rxlocator/platform/pkg/common/database"
	"github.com/rxlocator/platform/pkg/common/logger"
	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/gateway/auth"
	"github.com/rxlocator/platform/pkg/locator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupSQLite(t *testing.T) (*sql.DB, *Service) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`INSERT INTO zip_centroids (zip_code, latitude, longitude) VALUES ('19104', 39.9566, -75.1932), ('19103', 39.9522, -75.1742)`)
	require.NoError(t, err)

	return db, NewService(NewSQLRepository(db), logger.New("error", &bytes.Buffer{}))
}

func TestCreateFirstLocationIsPrimary(t *testing.T) {
	_, svc := setupSQLite(t)
	ctx := context.Background()

	home, err := svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Home", ZipCode: "19104"})
	require.NoError(t, err)
	assert.True(t, home.IsPrimary)
	assert.NotZero(t, home.ID)

	work, err := svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Work", ZipCode: "19103"})
	require.NoError(t, err)
	assert.False(t, work.IsPrimary)

	locs, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "Home", locs[0].Label)
	assert.True(t, locs[0].IsPrimary)
}

func TestCreateRejectsDuplicatesAndUnknownZips(t *testing.T) {
	_, svc := setupSQLite(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Home", ZipCode: "19104"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Home", ZipCode: "19103"})
	assert.Equal(t, locator.KindConflict, locator.KindOf(err))

	_, err = svc.Create(ctx, "user-2", models.CreateLocationRequest{Label: "Home", ZipCode: "19103"})
	assert.NoError(t, err, "labels are unique per user")

	_, err = svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Beach", ZipCode: "08226"})
	assert.Equal(t, locator.KindOriginNotFound, locator.KindOf(err))

	_, err = svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "", ZipCode: "1"})
	assert.Equal(t, locator.KindValidation, locator.KindOf(err))
}

func TestSetPrimaryAndDelete(t *testing.T) {
	db, svc := setupSQLite(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Home", ZipCode: "19104"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Work", ZipCode: "19103"})
	require.NoError(t, err)

	err = svc.Delete(ctx, "user-1", "Home")
	assert.Equal(t, locator.KindConflict, locator.KindOf(err))

	require.NoError(t, svc.SetPrimary(ctx, "user-1", "Work"))
	require.NoError(t, svc.Delete(ctx, "user-1", "Home"))

	var primaries int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM saved_locations WHERE user_id = 'user-1' AND is_primary = 1`).Scan(&primaries))
	assert.Equal(t, 1, primaries)

	assert.Equal(t, locator.KindNotFound, locator.KindOf(svc.Delete(ctx, "user-1", "Home")))
	assert.Equal(t, locator.KindNotFound, locator.KindOf(svc.SetPrimary(ctx, "user-1", "Gym")))
}

func TestCreateWithPrimaryMovesFlag(t *testing.T) {
	_, svc := setupSQLite(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Home", ZipCode: "19104"})
	require.NoError(t, err)
	work, err := svc.Create(ctx, "user-1", models.CreateLocationRequest{Label: "Work", ZipCode: "19103", Primary: true})
	require.NoError(t, err)
	assert.True(t, work.IsPrimary)

	locs, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Work", locs[0].Label)
	assert.False(t, locs[1].IsPrimary)
}

func setupGorm(t *testing.T) (sqlmock.Sqlmock, *GormRepository) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return mock, NewGormRepository(db)
}

func TestGormRepositoryList(t *testing.T) {
	mock, repo := setupGorm(t)
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "saved_locations" WHERE user_id = \$1 ORDER BY is_primary DESC,\s?label ASC`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "label", "zip_code", "is_primary", "created_at"}).
			AddRow(2, "user-1", "Home", "19104", true, created).
			AddRow(3, "user-1", "Work", "19103", false, created))

	locs, err := repo.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "Home", locs[0].Label)
	assert.True(t, locs[0].IsPrimary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepositoryDeletePrimaryRejected(t *testing.T) {
	mock, repo := setupGorm(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "saved_locations" WHERE user_id = \$1 AND label = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "label", "zip_code", "is_primary"}).
			AddRow(2, "user-1", "Home", "19104", true))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "user-1", "Home")
	assert.ErrorIs(t, err, ErrPrimaryDelete)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepositoryZipExists(t *testing.T) {
	mock, repo := setupGorm(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "zip_centroids" WHERE zip_code = \$1`).
		WithArgs("19104").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := repo.ZipExists(context.Background(), "19104")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteUniqueViolationsMapped(t *testing.T) {
	db, _ := setupSQLite(t)
	insert := `INSERT INTO saved_locations (user_id, label, zip_code, is_primary) VALUES (?, ?, '19104', ?)`

	_, err := db.Exec(insert, "user-1", "Home", true)
	require.NoError(t, err)

	_, err = db.Exec(insert, "user-1", "Home", false)
	require.Error(t, err)
	assert.ErrorIs(t, sqliteWriteError(err), ErrDuplicateLabel)

	_, err = db.Exec(insert, "user-1", "Work", true)
	require.Error(t, err)
	assert.ErrorIs(t, sqliteWriteError(err), ErrConcurrentChange)

	other := errors.New("disk I/O error")
	assert.Equal(t, other, sqliteWriteError(other))
	assert.NoError(t, sqliteWriteError(nil))
}

func TestPgWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"label index", &pgconn.PgError{Code: "23505", ConstraintName: "ux_saved_locations_user_label"}, ErrDuplicateLabel},
		{"wrapped label index", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_saved_locations_user_label"}), ErrDuplicateLabel},
		{"primary index", &pgconn.PgError{Code: "23505", ConstraintName: "ux_saved_locations_user_primary"}, ErrConcurrentChange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, pgWriteError(tt.err), tt.want)
		})
	}

	fk := &pgconn.PgError{Code: "23503"}
	assert.Equal(t, error(fk), pgWriteError(fk))
	assert.NoError(t, pgWriteError(nil))
}

func TestCreateLosingLabelRaceIsConflict(t *testing.T) {
	mock, repo := setupGorm(t)
	svc := NewService(repo, logger.New("error", &bytes.Buffer{}))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "zip_centroids" WHERE zip_code = \$1`).
		WithArgs("19104").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "saved_locations" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "saved_locations" WHERE user_id = \$1 AND label = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "saved_locations"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ux_saved_locations_user_label"})
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), "user-1", models.CreateLocationRequest{Label: "Home", ZipCode: "19104"})
	require.Error(t, err)
	assert.Equal(t, locator.KindConflict, locator.KindOf(err))
	assert.Equal(t, http.StatusConflict, locator.StatusFor(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler(t *testing.T) {
	_, svc := setupSQLite(t)
	r := mux.NewRouter()
	NewHandler(svc).Register(r)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "user-1"}))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/locations", `{"label":"Home","zipCode":"19104"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(http.MethodPost, "/locations", `{"label":"Home","zipCode":"19104"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodPost, "/locations", `{"label":"Lab","zipCode":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/locations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []models.SavedLocation `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.True(t, body.Items[0].IsPrimary)

	rec = do(http.MethodDelete, "/locations/Home", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodPut, "/locations/Nowhere/primary", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/locations", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
