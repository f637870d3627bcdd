package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reservation is an advisory checkout hold. Active until Released flips to
// true; it never flips back.
type Reservation struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ItemID     string     `gorm:"column:item_id;not null;index"`
	OrderID    string     `gorm:"column:order_id;not null;index"`
	Quantity   int        `gorm:"column:quantity;not null;check:quantity > 0"`
	ReservedAt time.Time  `gorm:"column:reserved_at;not null"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null;index"`
	Released   bool       `gorm:"column:released;not null;default:false"`
	ReleasedAt *time.Time `gorm:"column:released_at"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Active reports whether the hold still counts at the given instant.
func (r Reservation) Active(now time.Time) bool {
	return !r.Released && now.Before(r.ExpiresAt)
}
