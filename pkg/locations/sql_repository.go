package locations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rxlocator/platform/pkg/common/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLRepository stores locations in the local SQLite store.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) List(ctx context.Context, userID string) ([]models.SavedLocation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, label, zip_code, is_primary, created_at
		 FROM saved_locations WHERE user_id = ? ORDER BY is_primary DESC, label ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SavedLocation{}
	for rows.Next() {
		var loc models.SavedLocation
		if err := rows.Scan(&loc.ID, &loc.UserID, &loc.Label, &loc.ZipCode, &loc.IsPrimary, &loc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (r *SQLRepository) Create(ctx context.Context, loc *models.SavedLocation) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var existing, dup int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(CASE WHEN label = ? THEN 1 ELSE 0 END), 0) FROM saved_locations WHERE user_id = ?`,
			loc.Label, loc.UserID,
		).Scan(&existing, &dup); err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateLabel
		}

		if existing == 0 {
			loc.IsPrimary = true
		} else if loc.IsPrimary {
			if _, err := tx.ExecContext(ctx, `UPDATE saved_locations SET is_primary = 0 WHERE user_id = ?`, loc.UserID); err != nil {
				return sqliteWriteError(err)
			}
		}

		loc.CreatedAt = time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO saved_locations (user_id, label, zip_code, is_primary, created_at) VALUES (?, ?, ?, ?, ?)`,
			loc.UserID, loc.Label, loc.ZipCode, loc.IsPrimary, loc.CreatedAt)
		if err != nil {
			return sqliteWriteError(err)
		}
		loc.ID, err = res.LastInsertId()
		return err
	})
}

func (r *SQLRepository) Delete(ctx context.Context, userID, label string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		id, primary, err := lookup(ctx, tx, userID, label)
		if err != nil {
			return err
		}
		if primary {
			return ErrPrimaryDelete
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM saved_locations WHERE id = ?`, id)
		return err
	})
}

func (r *SQLRepository) SetPrimary(ctx context.Context, userID, label string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		id, primary, err := lookup(ctx, tx, userID, label)
		if err != nil || primary {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE saved_locations SET is_primary = 0 WHERE user_id = ?`, userID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE saved_locations SET is_primary = 1 WHERE id = ?`, id)
		return sqliteWriteError(err)
	})
}

func (r *SQLRepository) ZipExists(ctx context.Context, zip string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM zip_centroids WHERE zip_code = ?`, zip).Scan(&n)
	return n > 0, err
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// sqliteWriteError maps unique violations the same way pgWriteError does.
// SQLite names the indexed columns rather than the index.
func sqliteWriteError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return err
	}
	if strings.Contains(se.Error(), "saved_locations.label") {
		return ErrDuplicateLabel
	}
	return ErrConcurrentChange
}

func lookup(ctx context.Context, tx *sql.Tx, userID, label string) (int64, bool, error) {
	var id int64
	var primary bool
	err := tx.QueryRowContext(ctx,
		`SELECT id, is_primary FROM saved_locations WHERE user_id = ? AND label = ?`, userID, label,
	).Scan(&id, &primary)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, ErrNotFound
	}
	return id, primary, err
}
