package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const defaultPublishTimeout = 15 * time.Second

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type topicPublisher interface {
	PublisherFor(topic string) publisher
}

// PubSubSink publishes every route onto one topic, tagging the message with
// a route attribute so subscribers can filter.
type PubSubSink struct {
	topics topicPublisher
	topic  string
}

func newPubSubSink(topics topicPublisher, topic string) (*PubSubSink, error) {
	if topics == nil {
		return nil, errors.New("pubsub client is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("pubsub topic is required")
	}
	return &PubSubSink{topics: topics, topic: topic}, nil
}

func (s *PubSubSink) Publish(ctx context.Context, route string, payload any) error {
	r, err := validRoute(route)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", r, err)
	}

	pub := s.topics.PublisherFor(s.topic)
	if pub == nil {
		return fmt.Errorf("no publisher for topic %s", s.topic)
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"route":        r,
			"published_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return fmt.Errorf("publisher returned nil for topic %s", s.topic)
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish %s: %w", r, err)
	}
	return nil
}

func (s *PubSubSink) Close() error { return nil }

// pubsubPublishers adapts the shared Pub/Sub client to topicPublisher.
func pubsubPublishers(src PublisherSource) topicPublisher {
	if src == nil {
		return nil
	}
	return gcpTopics{src: src}
}

type gcpTopics struct {
	src PublisherSource
}

func (g gcpTopics) PublisherFor(topic string) publisher {
	p := g.src.Publisher(topic)
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
