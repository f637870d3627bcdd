package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/inventory-sync/pkg/config"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

// Routes understood by the automation subscribers.
const (
	RouteInventoryAlert  = "inventory-alert"
	RouteLowStock        = "low-stock"
	RouteWebhook         = "webhook"
	RouteOrderFulfilled  = "order-fulfilled"
	RouteCacheRevalidate = "cache-revalidate"
)

var errUnknownRoute = errors.New("automation route is required")

// Sink delivers a JSON payload to the external automation/alerting system.
type Sink interface {
	Publish(ctx context.Context, route string, payload any) error
	Close() error
}

// PublisherSource hands out Pub/Sub publishers by topic name.
type PublisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// NewSink picks the configured driver.
func NewSink(cfg config.AutomationConfig, pubsub PublisherSource, logg *logger.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.AutomationDriverHTTP:
		return NewHTTPSink(cfg.BaseURL, cfg.Timeout)
	case config.AutomationDriverPubSub:
		return newPubSubSink(pubsubPublishers(pubsub), cfg.Topic)
	case config.AutomationDriverKafka:
		return NewKafkaSink(NewKafkaWriter(cfg.KafkaBrokers, cfg.Topic))
	case "", config.AutomationDriverNone:
		return NewLogSink(logg), nil
	default:
		return nil, fmt.Errorf("unknown automation driver %q", cfg.Driver)
	}
}

func validRoute(route string) (string, error) {
	r := strings.Trim(strings.TrimSpace(route), "/")
	if r == "" {
		return "", errUnknownRoute
	}
	return r, nil
}
