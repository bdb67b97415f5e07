package gcppubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// NewClient connects to Pub/Sub. PUBSUB_EMULATOR_HOST is honoured by the client library.
func NewClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("gcp project id is empty")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create Pub/Sub client for project %s: %w", projectID, err)
	}
	return client, nil
}

func topicName(kind, action string) string {
	return fmt.Sprintf("trypie-%s-%s", kind, action)
}
