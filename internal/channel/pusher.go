package channel

import (
	"context"
	"errors"
	"strings"

	channelapi "github.com/angelmondragon/inventory-sync/pkg/channel"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

var (
	errClientRequired   = errors.New("channel client required")
	ErrLocationRequired = errors.New("no location for channel push")
)

type levelSetter interface {
	SetInventoryLevel(ctx context.Context, req channelapi.SetInventoryLevelRequest) error
}

// Result reports the outcome of a single push attempt.
type Result struct {
	OK        bool
	Retryable bool
	Err       error
}

// Pusher propagates locally originated quantities to the sales channel.
type Pusher struct {
	client          levelSetter
	defaultLocation string
	logger          *logger.Logger
}

func NewPusher(client levelSetter, defaultLocation string, logg *logger.Logger) (*Pusher, error) {
	if client == nil {
		return nil, errClientRequired
	}
	return &Pusher{
		client:          client,
		defaultLocation: strings.TrimSpace(defaultLocation),
		logger:          logg,
	}, nil
}

// Push sets the absolute quantity for the item on the channel. It never
// retries; failures are logged and described by the returned Result.
func (p *Pusher) Push(ctx context.Context, itemID string, locationID *string, quantity int) Result {
	location := p.defaultLocation
	if locationID != nil && strings.TrimSpace(*locationID) != "" {
		location = strings.TrimSpace(*locationID)
	}
	if location == "" {
		p.warn(ctx, itemID, "channel push skipped: no location configured")
		return Result{Err: ErrLocationRequired}
	}

	err := p.client.SetInventoryLevel(ctx, channelapi.SetInventoryLevelRequest{
		LocationID:      location,
		InventoryItemID: itemID,
		Available:       quantity,
	})
	if err != nil {
		p.warn(ctx, itemID, "channel push failed: "+err.Error())
		return Result{Retryable: channelapi.IsRetryable(err), Err: err}
	}
	return Result{OK: true}
}

func (p *Pusher) warn(ctx context.Context, itemID, msg string) {
	if p.logger == nil {
		return
	}
	p.logger.Warn(p.logger.WithItemID(ctx, itemID), msg)
}
