package locations

import (
	"context"
	"errors"

	"github.com/rxlocator/platform/pkg/common/models"
)

var (
	ErrNotFound       = errors.New("saved location not found")
	ErrDuplicateLabel = errors.New("label already in use")
	ErrPrimaryDelete  = errors.New("primary location cannot be deleted")
	// ErrConcurrentChange is a unique violation on the one-primary index,
	// raised when two writers race to set a primary.
	ErrConcurrentChange = errors.New("saved locations changed concurrently")
)

const labelIndex = "ux_saved_locations_user_label"

// Repository persists saved locations. Implementations keep at most one
// primary per user and make the first location of a user primary.
type Repository interface {
	List(ctx context.Context, userID string) ([]models.SavedLocation, error)
	Create(ctx context.Context, loc *models.SavedLocation) error
	Delete(ctx context.Context, userID, label string) error
	SetPrimary(ctx context.Context, userID, label string) error
	ZipExists(ctx context.Context, zip string) (bool, error)
}
