package channel

import (
	"context"
	"errors"
	"testing"

	channelapi "github.com/angelmondragon/inventory-sync/pkg/channel"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
)

type fakeLevelSetter struct {
	calls []channelapi.SetInventoryLevelRequest
	err   error
}

func (f *fakeLevelSetter) SetInventoryLevel(_ context.Context, req channelapi.SetInventoryLevelRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

func TestPushUsesExplicitLocation(t *testing.T) {
	client := &fakeLevelSetter{}
	p, err := NewPusher(client, "default-loc", nil)
	if err != nil {
		t.Fatalf("NewPusher: %v", err)
	}

	loc := "warehouse-2"
	res := p.Push(context.Background(), "sku-1", &loc, 17)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(client.calls))
	}
	if got := client.calls[0]; got.LocationID != "warehouse-2" || got.Available != 17 || got.InventoryItemID != "sku-1" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestPushFallsBackToDefaultLocation(t *testing.T) {
	client := &fakeLevelSetter{}
	p, _ := NewPusher(client, "default-loc", nil)

	blank := "  "
	if res := p.Push(context.Background(), "sku-1", &blank, 3); !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if client.calls[0].LocationID != "default-loc" {
		t.Fatalf("expected default location, got %q", client.calls[0].LocationID)
	}
}

func TestPushWithoutAnyLocationFails(t *testing.T) {
	client := &fakeLevelSetter{}
	p, _ := NewPusher(client, "", nil)

	res := p.Push(context.Background(), "sku-1", nil, 3)
	if res.OK || res.Retryable || !errors.Is(res.Err, ErrLocationRequired) {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(client.calls) != 0 {
		t.Fatal("client must not be called without a location")
	}
}

func TestPushReportsRetryability(t *testing.T) {
	client := &fakeLevelSetter{err: pkgerrors.Wrap(pkgerrors.CodeDependency, &channelapi.APIError{StatusCode: 503}, "down")}
	p, _ := NewPusher(client, "loc", nil)
	if res := p.Push(context.Background(), "sku-1", nil, 3); res.OK || !res.Retryable {
		t.Fatalf("expected retryable failure, got %+v", res)
	}

	client.err = pkgerrors.Wrap(pkgerrors.CodeValidation, &channelapi.APIError{StatusCode: 422}, "bad")
	if res := p.Push(context.Background(), "sku-1", nil, 3); res.OK || res.Retryable {
		t.Fatalf("expected permanent failure, got %+v", res)
	}
}

func TestNewPusherRequiresClient(t *testing.T) {
	if _, err := NewPusher(nil, "loc", nil); err == nil {
		t.Fatal("expected error without client")
	}
}
