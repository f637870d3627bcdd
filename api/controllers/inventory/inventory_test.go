package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	inventorysvc "github.com/angelmondragon/inventory-sync/internal/inventory"
	"github.com/angelmondragon/inventory-sync/internal/ledger"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/pagination"
)

type stubInventory struct {
	qty       int
	record    *models.InventoryRecord
	recordErr error
	applied   []inventorysvc.ApplyQuantityInput
	applyErr  error
	bulk      []inventorysvc.BulkResult
	lowStock  []models.InventoryRecord
	threshold int
	page      pagination.Page[models.InventoryLogEntry]
	params    pagination.Params
	err       error
}

func (s *stubInventory) GetQuantity(context.Context, string) (int, error) { return s.qty, s.err }

func (s *stubInventory) GetRecord(context.Context, string) (*models.InventoryRecord, error) {
	return s.record, s.recordErr
}

func (s *stubInventory) ApplyQuantity(_ context.Context, input inventorysvc.ApplyQuantityInput) (*ledger.ApplyResult, error) {
	s.applied = append(s.applied, input)
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	return &ledger.ApplyResult{
		Record: models.InventoryRecord{ItemID: input.ItemID, AvailableQuantity: input.Quantity, LastSyncSource: input.Source, Version: 2},
		Entry:  models.InventoryLogEntry{ID: uuid.New(), ItemID: input.ItemID, PreviousQuantity: 20, NewQuantity: input.Quantity, Delta: input.Quantity - 20, Source: input.Source},
	}, nil
}

func (s *stubInventory) BulkApply(_ context.Context, inputs []inventorysvc.ApplyQuantityInput) ([]inventorysvc.BulkResult, error) {
	s.applied = append(s.applied, inputs...)
	return s.bulk, s.err
}

func (s *stubInventory) ListLowStock(_ context.Context, threshold int) ([]models.InventoryRecord, error) {
	s.threshold = threshold
	return s.lowStock, s.err
}

func (s *stubInventory) History(_ context.Context, _ string, params pagination.Params) (pagination.Page[models.InventoryLogEntry], error) {
	s.params = params
	return s.page, s.err
}

func withItemID(req *http.Request, itemID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("itemId", itemID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestGetReturnsQuantityAndRecord(t *testing.T) {
	svc := &stubInventory{qty: 7, record: &models.InventoryRecord{ItemID: "sku-1", AvailableQuantity: 7, LastSyncSource: enums.SyncSourceChannel, Version: 3}}
	resp := httptest.NewRecorder()
	Get(svc, nil).ServeHTTP(resp, withItemID(httptest.NewRequest(http.MethodGet, "/api/v1/inventory/sku-1", nil), "sku-1"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data itemResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.AvailableQuantity != 7 || envelope.Data.Record == nil || envelope.Data.Record.Version != 3 {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestGetUnknownItemReadsZero(t *testing.T) {
	svc := &stubInventory{recordErr: pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")}
	resp := httptest.NewRecorder()
	Get(svc, nil).ServeHTTP(resp, withItemID(httptest.NewRequest(http.MethodGet, "/", nil), "ghost"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"record":null`) || !strings.Contains(resp.Body.String(), `"availableQuantity":0`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestApplyPassesInputThrough(t *testing.T) {
	svc := &stubInventory{}
	body := `{"quantity":17,"source":"storefront","notes":"  order 1001 confirmed "}`
	req := withItemID(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)), "sku-1")
	resp := httptest.NewRecorder()
	Apply(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if len(svc.applied) != 1 {
		t.Fatalf("expected one apply call, got %d", len(svc.applied))
	}
	got := svc.applied[0]
	if got.ItemID != "sku-1" || got.Quantity != 17 || got.Source != enums.SyncSourceStorefront || got.Notes != "order 1001 confirmed" {
		t.Fatalf("unexpected input %+v", got)
	}
	if !strings.Contains(resp.Body.String(), `"delta":-3`) {
		t.Fatalf("expected entry delta in body, got %s", resp.Body.String())
	}
}

func TestApplyRejectsChannelSourceAndNegative(t *testing.T) {
	for _, body := range []string{
		`{"quantity":5,"source":"channel"}`,
		`{"quantity":-1,"source":"manual"}`,
		`{"source":"manual"}`,
	} {
		svc := &stubInventory{}
		req := withItemID(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)), "sku-1")
		resp := httptest.NewRecorder()
		Apply(svc, nil).ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, resp.Code)
		}
		if len(svc.applied) != 0 {
			t.Fatalf("%s: service must not be called", body)
		}
	}
}

func TestApplyMapsConflict(t *testing.T) {
	svc := &stubInventory{applyErr: pkgerrors.New(pkgerrors.CodeConflict, "inventory update conflicted, retry")}
	req := withItemID(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"quantity":1,"source":"manual"}`)), "sku-1")
	resp := httptest.NewRecorder()
	Apply(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestBulkReportsPerItemOutcome(t *testing.T) {
	svc := &stubInventory{
		bulk: []inventorysvc.BulkResult{
			{ItemID: "sku-1", Result: &ledger.ApplyResult{Record: models.InventoryRecord{ItemID: "sku-1", AvailableQuantity: 4}}},
			{ItemID: "sku-2", Err: pkgerrors.New(pkgerrors.CodeConflict, "inventory update conflicted, retry")},
			{ItemID: "sku-3", Err: errors.New("db down")},
		},
		err: errors.New("2 items failed"),
	}
	body := `{"items":[
		{"itemId":"sku-1","quantity":4,"source":"automation"},
		{"itemId":"sku-2","quantity":2,"source":"automation"},
		{"itemId":"sku-3","quantity":9,"source":"manual"}
	]}`
	resp := httptest.NewRecorder()
	Bulk(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data bulkResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Applied != 1 || envelope.Data.Failed != 2 {
		t.Fatalf("unexpected counts %+v", envelope.Data)
	}
	if envelope.Data.Results[1].Error.Code != string(pkgerrors.CodeConflict) {
		t.Fatalf("unexpected error %+v", envelope.Data.Results[1].Error)
	}
	if envelope.Data.Results[2].Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("untyped errors should be masked as internal, got %+v", envelope.Data.Results[2].Error)
	}
	if len(svc.applied) != 3 {
		t.Fatalf("expected 3 inputs, got %d", len(svc.applied))
	}
}

func TestBulkRejectsEmptyAndInvalidItems(t *testing.T) {
	for _, body := range []string{
		`{"items":[]}`,
		`{"items":[{"itemId":"","quantity":1,"source":"manual"}]}`,
		`{"items":[{"itemId":"sku-1","quantity":1,"source":"channel"}]}`,
	} {
		resp := httptest.NewRecorder()
		Bulk(&stubInventory{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, resp.Code)
		}
	}
}

func TestLowStockParsesThreshold(t *testing.T) {
	svc := &stubInventory{lowStock: []models.InventoryRecord{{ItemID: "sku-b"}, {ItemID: "sku-a", AvailableQuantity: 3}}}
	resp := httptest.NewRecorder()
	LowStock(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/low-stock?threshold=5", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.threshold != 5 {
		t.Fatalf("expected threshold 5, got %d", svc.threshold)
	}
	if !strings.Contains(resp.Body.String(), `"sku-b"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	LowStock(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/?threshold=-1", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative threshold, got %d", resp.Code)
	}
}

func TestLogsPaginates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubInventory{page: pagination.Page[models.InventoryLogEntry]{
		Items:      []models.InventoryLogEntry{{ID: uuid.New(), ItemID: "sku-1", NewQuantity: 5, CreatedAt: now}},
		NextCursor: "next-token",
	}}
	req := withItemID(httptest.NewRequest(http.MethodGet, "/?limit=1&cursor=abc", nil), "sku-1")
	resp := httptest.NewRecorder()
	Logs(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.params.Limit != 1 || svc.params.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.params)
	}
	var envelope struct {
		Data historyResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.NextCursor != "next-token" || len(envelope.Data.Items) != 1 {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
}

func TestLogsBadCursor(t *testing.T) {
	svc := &stubInventory{err: pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")}
	resp := httptest.NewRecorder()
	Logs(svc, nil).ServeHTTP(resp, withItemID(httptest.NewRequest(http.MethodGet, "/?cursor=%25%25", nil), "sku-1"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
