package locations

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rxlocator/platform/pkg/common/models"
	"gorm.io/gorm"
)

type savedLocationRecord struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	Label     string    `gorm:"column:label"`
	ZipCode   string    `gorm:"column:zip_code"`
	IsPrimary bool      `gorm:"column:is_primary"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (savedLocationRecord) TableName() string { return "saved_locations" }

func (r savedLocationRecord) model() models.SavedLocation {
	return models.SavedLocation{
		ID:        r.ID,
		UserID:    r.UserID,
		Label:     r.Label,
		ZipCode:   r.ZipCode,
		IsPrimary: r.IsPrimary,
		CreatedAt: r.CreatedAt,
	}
}

// GormRepository stores locations in Postgres.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) List(ctx context.Context, userID string) ([]models.SavedLocation, error) {
	var records []savedLocationRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC").Order("label ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]models.SavedLocation, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.model())
	}
	return out, nil
}

func (r *GormRepository) Create(ctx context.Context, loc *models.SavedLocation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&savedLocationRecord{}).Where("user_id = ?", loc.UserID).Count(&existing).Error; err != nil {
			return err
		}
		var dup int64
		if err := tx.Model(&savedLocationRecord{}).Where("user_id = ? AND label = ?", loc.UserID, loc.Label).Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateLabel
		}

		if existing == 0 {
			loc.IsPrimary = true
		} else if loc.IsPrimary {
			if err := clearPrimary(tx, loc.UserID); err != nil {
				return pgWriteError(err)
			}
		}

		rec := savedLocationRecord{
			UserID:    loc.UserID,
			Label:     loc.Label,
			ZipCode:   loc.ZipCode,
			IsPrimary: loc.IsPrimary,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return pgWriteError(err)
		}
		*loc = rec.model()
		return nil
	})
}

func (r *GormRepository) Delete(ctx context.Context, userID, label string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := findLocation(tx, userID, label)
		if err != nil {
			return err
		}
		if rec.IsPrimary {
			return ErrPrimaryDelete
		}
		return tx.Delete(&savedLocationRecord{}, rec.ID).Error
	})
}

func (r *GormRepository) SetPrimary(ctx context.Context, userID, label string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := findLocation(tx, userID, label)
		if err != nil {
			return err
		}
		if rec.IsPrimary {
			return nil
		}
		if err := clearPrimary(tx, userID); err != nil {
			return err
		}
		err = tx.Model(&savedLocationRecord{}).Where("id = ?", rec.ID).Update("is_primary", true).Error
		return pgWriteError(err)
	})
}

func (r *GormRepository) ZipExists(ctx context.Context, zip string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Table("zip_centroids").Where("zip_code = ?", zip).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func findLocation(tx *gorm.DB, userID, label string) (*savedLocationRecord, error) {
	var rec savedLocationRecord
	err := tx.Where("user_id = ? AND label = ?", userID, label).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func clearPrimary(tx *gorm.DB, userID string) error {
	return tx.Model(&savedLocationRecord{}).
		Where("user_id = ? AND is_primary = ?", userID, true).
		Update("is_primary", false).Error
}

const pgUniqueViolation = "23505"

// pgWriteError turns unique violations from a racing writer into the
// repository errors the count checks would have produced.
func pgWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	if pgErr.ConstraintName == labelIndex {
		return ErrDuplicateLabel
	}
	return ErrConcurrentChange
}
