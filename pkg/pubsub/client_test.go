package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/inventory-sync/pkg/config"
)

func TestTopicName(t *testing.T) {
	cases := []struct {
		name    string
		project string
		topic   string
		want    string
		wantErr error
	}{
		{name: "short id", project: "shop", topic: "inventory-events", want: "projects/shop/topics/inventory-events"},
		{name: "trimmed", project: " shop ", topic: " inventory-events ", want: "projects/shop/topics/inventory-events"},
		{name: "resource name", project: "", topic: "projects/other/topics/x", want: "projects/other/topics/x"},
		{name: "blank topic", project: "shop", topic: "  ", wantErr: errTopicRequired},
		{name: "no project", project: "", topic: "inventory-events", wantErr: errProjectIDRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TopicName(tc.project, tc.topic)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClientOptionsPrecedence(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds.json"}); len(opts) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(opts))
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, nil, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestNilClientIsInert(t *testing.T) {
	var c *Client
	if c.Publisher("inventory-events") != nil {
		t.Fatal("expected nil publisher")
	}
	if err := c.Ping(context.Background(), "inventory-events"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
