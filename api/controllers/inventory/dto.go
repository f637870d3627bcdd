package inventory

import (
	"time"

	"github.com/angelmondragon/inventory-sync/api/responses"
	"github.com/angelmondragon/inventory-sync/internal/ledger"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
)

type recordResponse struct {
	ItemID            string    `json:"itemId"`
	AvailableQuantity int       `json:"availableQuantity"`
	LocationID        *string   `json:"locationId,omitempty"`
	LastSyncSource    string    `json:"lastSyncSource"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func newRecordResponse(record models.InventoryRecord) recordResponse {
	return recordResponse{
		ItemID:            record.ItemID,
		AvailableQuantity: record.AvailableQuantity,
		LocationID:        record.LocationID,
		LastSyncSource:    string(record.LastSyncSource),
		Version:           record.Version,
		UpdatedAt:         record.UpdatedAt,
	}
}

type logEntryResponse struct {
	ID               string    `json:"id"`
	ItemID           string    `json:"itemId"`
	PreviousQuantity int       `json:"previousQuantity"`
	NewQuantity      int       `json:"newQuantity"`
	Delta            int       `json:"delta"`
	Source           string    `json:"source"`
	Notes            string    `json:"notes"`
	Timestamp        time.Time `json:"timestamp"`
}

func newLogEntryResponse(entry models.InventoryLogEntry) logEntryResponse {
	return logEntryResponse{
		ID:               entry.ID.String(),
		ItemID:           entry.ItemID,
		PreviousQuantity: entry.PreviousQuantity,
		NewQuantity:      entry.NewQuantity,
		Delta:            entry.Delta,
		Source:           string(entry.Source),
		Notes:            entry.Notes,
		Timestamp:        entry.CreatedAt,
	}
}

type applyResponse struct {
	Record  recordResponse   `json:"record"`
	Entry   logEntryResponse `json:"entry"`
	Created bool             `json:"created"`
}

func newApplyResponse(result *ledger.ApplyResult) applyResponse {
	return applyResponse{
		Record:  newRecordResponse(result.Record),
		Entry:   newLogEntryResponse(result.Entry),
		Created: result.Created,
	}
}

type itemResponse struct {
	ItemID            string          `json:"itemId"`
	AvailableQuantity int             `json:"availableQuantity"`
	Record            *recordResponse `json:"record"`
}

type historyResponse struct {
	Items      []logEntryResponse `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

type bulkItemResponse struct {
	ItemID   string               `json:"itemId"`
	Applied  bool                 `json:"applied"`
	Quantity *int                 `json:"quantity,omitempty"`
	Error    *responses.ErrorBody `json:"error,omitempty"`
}

type bulkResponse struct {
	Applied int                `json:"applied"`
	Failed  int                `json:"failed"`
	Results []bulkItemResponse `json:"results"`
}

func bulkError(err error) *responses.ErrorBody {
	code := pkgerrors.CodeInternal
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	}
	return &responses.ErrorBody{Code: string(code), Message: pkgerrors.PublicMessage(err)}
}
