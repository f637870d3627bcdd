package dispatch

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-sync/pkg/db/models"
)

// DeadLetterRepository persists tasks the pool gave up on.
type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Create(ctx context.Context, letter *models.DispatchDeadLetter) error {
	return r.db.WithContext(ctx).Create(letter).Error
}

// DeleteOlderThan removes dead letters that failed before cutoff.
func (r *DeadLetterRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Delete(&models.DispatchDeadLetter{})
	return res.RowsAffected, res.Error
}

func (r *DeadLetterRepository) ListRecent(ctx context.Context, limit int) ([]models.DispatchDeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	var letters []models.DispatchDeadLetter
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&letters).Error
	return letters, err
}
