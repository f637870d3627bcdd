package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-sync/pkg/enums"
)

// InventoryLogEntry records one applied quantity change. Entries are
// append-only.
type InventoryLogEntry struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ItemID           string           `gorm:"column:item_id;not null;index:idx_inventory_log_entries_item_created,priority:1"`
	PreviousQuantity int              `gorm:"column:previous_quantity;not null"`
	NewQuantity      int              `gorm:"column:new_quantity;not null"`
	Delta            int              `gorm:"column:delta;not null"`
	Source           enums.SyncSource `gorm:"column:source;not null"`
	Notes            string           `gorm:"column:notes;not null;default:''"`
	CreatedAt        time.Time        `gorm:"column:created_at;not null;index:idx_inventory_log_entries_item_created,priority:2"`
}

func (InventoryLogEntry) TableName() string { return "inventory_log_entries" }

func (e *InventoryLogEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}
