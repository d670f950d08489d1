package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/cloud-atlas/api/internal/services"
)

// PubSubMemoryPublisher broadcasts accepted memories to a Pub/Sub topic so
// downstream consumers (moderation review, search indexing) can react.
type PubSubMemoryPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubMemoryPublisher constructs a Pub/Sub backed memory event publisher.
func NewPubSubMemoryPublisher(topic *pubsub.Topic) (*PubSubMemoryPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub memory publisher: topic is required")
	}
	return &PubSubMemoryPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishMemoryCreated enqueues a created-memory event on the configured topic.
// The payload carries identifiers and timestamps only, never the content.
func (p *PubSubMemoryPublisher) PublishMemoryCreated(ctx context.Context, message services.MemoryCreatedMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub memory publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal memory event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "memoryId", message.MemoryID)
	setAttr(attrs, "documentId", message.DocumentID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish memory event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
