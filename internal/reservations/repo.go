package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-sync/pkg/db/models"
)

// Repository persists reservation rows. Every state change is a conditional
// update on released = false, so concurrent release and sweep calls cannot
// un-release a row.
type Repository interface {
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
	SumActive(ctx context.Context, itemID string, now time.Time) (int, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND released = ?", id, false).
		Updates(map[string]any{"released": true, "released_at": at})
	return res.RowsAffected, res.Error
}

func (r *repository) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("released = ? AND expires_at < ?", false, now).
		Updates(map[string]any{"released": true, "released_at": now})
	return res.RowsAffected, res.Error
}

func (r *repository) SumActive(ctx context.Context, itemID string, now time.Time) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("item_id = ? AND released = ? AND expires_at >= ?", itemID, false, now).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}
