package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/inventory-sync/pkg/db/types"
)

// ChannelProduct mirrors a channel catalog entry. Deletes on the channel
// flip IsActive instead of removing the row.
type ChannelProduct struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID  string              `gorm:"column:external_id;not null;uniqueIndex"`
	Title       string              `gorm:"column:title"`
	Handle      string              `gorm:"column:handle"`
	Vendor      string              `gorm:"column:vendor"`
	ProductType string              `gorm:"column:product_type"`
	Status      string              `gorm:"column:status"`
	Tags        dbtypes.StringArray `gorm:"column:tags"`
	IsActive    bool                `gorm:"column:is_active;not null;default:true"`
	Payload     json.RawMessage     `gorm:"column:payload;type:jsonb"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelProduct) TableName() string { return "channel_products" }

func (p *ChannelProduct) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
