package alerts

import (
	"time"

	"github.com/angelmondragon/inventory-sync/pkg/enums"
)

// Thresholds are inclusive upper bounds for the two non-zero severity bands.
type Thresholds struct {
	LowStock int
	Restock  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{LowStock: 10, Restock: 2}
}

// Event is the payload handed to the alerting sink.
type Event struct {
	ItemID       string          `json:"itemId"`
	CurrentStock int             `json:"currentStock"`
	Threshold    int             `json:"threshold"`
	AlertType    enums.AlertType `json:"alertType"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Evaluate returns the single most severe alert for the quantity, or nil.
func Evaluate(itemID string, quantity int, t Thresholds) *Event {
	var (
		alertType enums.AlertType
		threshold int
	)
	switch {
	case quantity <= 0:
		alertType, threshold = enums.AlertTypeOutOfStock, 0
	case quantity <= t.Restock:
		alertType, threshold = enums.AlertTypeRestockNeeded, t.Restock
	case quantity <= t.LowStock:
		alertType, threshold = enums.AlertTypeLowStock, t.LowStock
	default:
		return nil
	}
	return &Event{
		ItemID:       itemID,
		CurrentStock: quantity,
		Threshold:    threshold,
		AlertType:    alertType,
	}
}
