package channelwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultPendingTTL bounds how long a crashed handler can block redelivery
// of its event.
const defaultPendingTTL = 2 * time.Minute

const (
	markerPending   = "pending"
	markerCompleted = "completed"
)

// ClaimState is what the guard knows about a delivery id.
type ClaimState int

const (
	// ClaimAcquired means this caller now owns the delivery.
	ClaimAcquired ClaimState = iota
	// ClaimInProgress means another attempt is still running.
	ClaimInProgress
	// ClaimCompleted means the delivery was already processed.
	ClaimCompleted
)

type dedupeStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookDedupeKey(deliveryID string) string
}

// DeliveryGuard tracks channel delivery ids through pending and completed
// states. Only completed deliveries are acked as duplicates; a redelivery
// that overlaps a running attempt is refused so the sender retries later.
type DeliveryGuard struct {
	store      dedupeStore
	ttl        time.Duration
	pendingTTL time.Duration
}

func NewDeliveryGuard(store dedupeStore, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	pendingTTL := defaultPendingTTL
	if ttl > 0 && ttl < pendingTTL {
		pendingTTL = ttl
	}
	return &DeliveryGuard{store: store, ttl: ttl, pendingTTL: pendingTTL}, nil
}

// Claim marks the delivery pending when nobody holds it yet.
func (g *DeliveryGuard) Claim(ctx context.Context, deliveryID string) (ClaimState, error) {
	if deliveryID == "" {
		return ClaimAcquired, errors.New("delivery id is required")
	}
	key := g.store.WebhookDedupeKey(deliveryID)
	claimed, err := g.store.SetNX(ctx, key, markerPending, g.pendingTTL)
	if err != nil {
		return ClaimAcquired, fmt.Errorf("claim webhook delivery: %w", err)
	}
	if claimed {
		return ClaimAcquired, nil
	}

	marker, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// the holder released between SETNX and GET; let the sender retry
		return ClaimInProgress, nil
	case err != nil:
		return ClaimAcquired, fmt.Errorf("read webhook delivery: %w", err)
	case marker == markerCompleted:
		return ClaimCompleted, nil
	default:
		return ClaimInProgress, nil
	}
}

// Complete records a processed delivery for the dedupe window.
func (g *DeliveryGuard) Complete(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Set(ctx, g.store.WebhookDedupeKey(deliveryID), markerCompleted, g.ttl)
}

// Release drops a pending claim so a redelivery runs the handlers again.
func (g *DeliveryGuard) Release(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.WebhookDedupeKey(deliveryID))
}
