package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-sync/pkg/enums"
)

// DispatchDeadLetter captures side-effect tasks that exhausted their retries
// or never made it onto the queue.
type DispatchDeadLetter struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	TaskKind     enums.DispatchTaskKind `gorm:"column:task_kind;not null"`
	ItemID       *string                `gorm:"column:item_id"`
	Payload      json.RawMessage        `gorm:"column:payload;type:jsonb"`
	Reason       enums.DeadLetterReason `gorm:"column:reason;not null"`
	ErrorMessage *string                `gorm:"column:error_message"`
	AttemptCount int                    `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time              `gorm:"column:failed_at;not null;index"`
}

func (DispatchDeadLetter) TableName() string { return "dispatch_dead_letters" }

func (d *DispatchDeadLetter) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.FailedAt.IsZero() {
		d.FailedAt = time.Now().UTC()
	}
	return nil
}
