package pubsub

import (
	"context"
	"testing"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"shop", "sf-order-events", "projects/shop/topics/sf-order-events"},
		{"shop", " projects/other/topics/x ", "projects/other/topics/x"},
		{"shop", "", ""},
		{"", "sf-order-events", ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestConfiguredTopicsSkipsBlanks(t *testing.T) {
	got := configuredTopics(config.EventingConfig{OrdersTopic: "orders", NotificationTopic: "  "})
	if len(got) != 1 || got[0] != "orders" {
		t.Fatalf("unexpected topics %v", got)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.EventingConfig{}, nil); err != errProjectIDRequired {
		t.Fatalf("expected errProjectIDRequired, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error on nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client should be a no-op, got %v", err)
	}
	if err := c.Publish(context.Background(), "orders", "", nil, nil); err == nil {
		t.Fatalf("expected publish error on nil client")
	}
}
