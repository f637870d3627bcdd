package models

import (
	"time"

	"github.com/angelmondragon/inventory-sync/pkg/enums"
)

// InventoryRecord is the authoritative stock count for one sellable item.
// Rows are only written through the ledger store; Version guards concurrent
// writers.
type InventoryRecord struct {
	ItemID            string           `gorm:"column:item_id;primaryKey"`
	AvailableQuantity int              `gorm:"column:available_quantity;not null;default:0;check:available_quantity >= 0"`
	LocationID        *string          `gorm:"column:location_id"`
	LastSyncSource    enums.SyncSource `gorm:"column:last_sync_source;not null"`
	Version           int64            `gorm:"column:version;not null;default:1"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRecord) TableName() string { return "inventory_records" }
