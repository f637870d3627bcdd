package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/inventory-sync/pkg/config"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

// Inventory events are small and latency matters more than batch size.
const publishDelay = 10 * time.Millisecond

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns one Pub/Sub connection and a publisher per topic.
type Client struct {
	client    *pubsub.Client
	projectID string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails when any of topics is missing.
// Topics are never created here; they belong to infrastructure.
func NewClient(ctx context.Context, gcp config.GCPConfig, topics []string, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  projectID,
		publishers: map[string]*pubsub.Publisher{},
	}
	for _, topic := range topics {
		if err := c.checkTopic(ctx, topic); err != nil {
			_ = psClient.Close()
			return nil, err
		}
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project_id": projectID, "topics": topics}), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a credentials file; with
// neither the library falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// TopicName expands a short topic id to its resource name. Full resource
// names pass through untouched.
func TopicName(projectID, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", errTopicRequired
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic, nil
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", errProjectIDRequired
	}
	return "projects/" + projectID + "/topics/" + topic, nil
}

func (c *Client) checkTopic(ctx context.Context, topic string) error {
	name, err := TopicName(c.projectID, topic)
	if err != nil {
		return err
	}
	_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", topic)
	default:
		return fmt.Errorf("checking topic %q: %w", topic, err)
	}
}

// Publisher returns the shared publisher for topic, or nil when the client
// is unusable or the name is blank.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name, err := TopicName(c.projectID, topic)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.client.Publisher(name)
	p.PublishSettings.DelayThreshold = publishDelay
	c.publishers[name] = p
	return p
}

// Ping is used by readiness checks.
func (c *Client) Ping(ctx context.Context, topic string) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkTopic(ctx, topic)
}

// Close flushes every publisher before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	publishers := c.publishers
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()

	for _, p := range publishers {
		p.Stop()
	}
	return c.client.Close()
}
