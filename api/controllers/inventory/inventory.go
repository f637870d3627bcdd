package inventory

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/inventory-sync/api/responses"
	"github.com/angelmondragon/inventory-sync/api/validators"
	inventorysvc "github.com/angelmondragon/inventory-sync/internal/inventory"
	"github.com/angelmondragon/inventory-sync/internal/ledger"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
	"github.com/angelmondragon/inventory-sync/pkg/pagination"
)

const (
	maxNotesLen  = 500
	maxCursorLen = 512
)

var (
	// 0 means the service default threshold
	lowStockRange     = validators.IntRange{Default: 0, Min: 0, Max: 1_000_000}
	historyLimitRange = validators.IntRange{Default: pagination.DefaultLimit, Min: 1, Max: pagination.MaxLimit}
)

type quantityReader interface {
	GetQuantity(ctx context.Context, itemID string) (int, error)
	GetRecord(ctx context.Context, itemID string) (*models.InventoryRecord, error)
}

type quantityWriter interface {
	ApplyQuantity(ctx context.Context, input inventorysvc.ApplyQuantityInput) (*ledger.ApplyResult, error)
}

type bulkWriter interface {
	BulkApply(ctx context.Context, inputs []inventorysvc.ApplyQuantityInput) ([]inventorysvc.BulkResult, error)
}

type lowStockLister interface {
	ListLowStock(ctx context.Context, threshold int) ([]models.InventoryRecord, error)
}

type historyReader interface {
	History(ctx context.Context, itemID string, params pagination.Params) (pagination.Page[models.InventoryLogEntry], error)
}

// Get returns the cached quantity plus the full record when one exists.
// Items the ledger has never seen read as quantity 0 with a null record.
func Get(svc quantityReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithItemID(ctx, itemID)
		}

		qty, err := svc.GetQuantity(ctx, itemID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := itemResponse{ItemID: itemID, AvailableQuantity: qty}
		record, err := svc.GetRecord(ctx, itemID)
		switch {
		case err == nil:
			rec := newRecordResponse(*record)
			resp.Record = &rec
		case pkgerrors.Is(err, pkgerrors.CodeNotFound):
			// never applied; quantity already reads 0
		default:
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

type applyRequest struct {
	Quantity   *int    `json:"quantity" validate:"required,gte=0"`
	Source     string  `json:"source" validate:"required,local_source"`
	Notes      string  `json:"notes" validate:"max=500"`
	LocationID *string `json:"locationId"`
}

// Apply sets the item's absolute quantity.
func Apply(svc quantityWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload applyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ApplyQuantity(r.Context(), inventorysvc.ApplyQuantityInput{
			ItemID:     itemID,
			Quantity:   *payload.Quantity,
			Source:     enums.SyncSource(payload.Source),
			Notes:      validators.CleanText(payload.Notes, maxNotesLen),
			LocationID: payload.LocationID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newApplyResponse(result))
	}
}

type bulkRequest struct {
	Items []bulkItemRequest `json:"items" validate:"required,min=1,max=500,dive"`
}

type bulkItemRequest struct {
	ItemID     string  `json:"itemId" validate:"required,max=255"`
	Quantity   *int    `json:"quantity" validate:"required,gte=0"`
	Source     string  `json:"source" validate:"required,local_source"`
	Notes      string  `json:"notes" validate:"max=500"`
	LocationID *string `json:"locationId"`
}

// Bulk applies each item independently and reports per-item outcomes.
// One item failing never rolls back another.
func Bulk(svc bulkWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var payload bulkRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inputs := make([]inventorysvc.ApplyQuantityInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			inputs = append(inputs, inventorysvc.ApplyQuantityInput{
				ItemID:     item.ItemID,
				Quantity:   *item.Quantity,
				Source:     enums.SyncSource(item.Source),
				Notes:      validators.CleanText(item.Notes, maxNotesLen),
				LocationID: item.LocationID,
			})
		}

		results, err := svc.BulkApply(r.Context(), inputs)
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "bulk apply finished with failures")
		}

		resp := bulkResponse{Results: make([]bulkItemResponse, 0, len(results))}
		for _, res := range results {
			item := bulkItemResponse{ItemID: res.ItemID}
			if res.Err != nil {
				item.Error = bulkError(res.Err)
				resp.Failed++
			} else if res.Result != nil {
				qty := res.Result.Record.AvailableQuantity
				item.Applied = true
				item.Quantity = &qty
				resp.Applied++
			}
			resp.Results = append(resp.Results, item)
		}
		responses.WriteSuccess(w, resp)
	}
}

// LowStock lists items at or below ?threshold, lowest quantity first.
func LowStock(svc lowStockLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		threshold, err := validators.QueryInt(r, "threshold", lowStockRange)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		records, err := svc.ListLowStock(r.Context(), threshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]recordResponse, 0, len(records))
		for _, record := range records {
			items = append(items, newRecordResponse(record))
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

// Logs pages through the item's change log, newest first.
func Logs(svc historyReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.QueryInt(r, "limit", historyLimitRange)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.History(r.Context(), itemID, pagination.Params{
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor", maxCursorLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := historyResponse{Items: make([]logEntryResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for _, entry := range page.Items {
			resp.Items = append(resp.Items, newLogEntryResponse(entry))
		}
		responses.WriteSuccess(w, resp)
	}
}

func itemIDParam(r *http.Request) (string, error) {
	itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if itemID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	return itemID, nil
}
