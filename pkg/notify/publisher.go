// Package notify broadcasts cache-invalidation events after committed
// mutations, so peer processes serving the same collections can refresh
// their own views instead of waiting for their next periodic tick.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// Mutation operations carried on InvalidationEvent.Op.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// InvalidationEvent describes one committed mutation. Consumers only need
// the collection name to know which view to rebuild; the op and record ID
// are there for observability.
type InvalidationEvent struct {
	Collection string    `json:"collection"`
	Op         string    `json:"op"`
	RecordID   string    `json:"recordId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher is the contract the mutation coordinator publishes through.
type Publisher interface {
	PublishInvalidation(ctx context.Context, event InvalidationEvent) error
	io.Closer
}

// PubsubPublisherConfig holds configuration for the Google Pub/Sub publisher.
type PubsubPublisherConfig struct {
	TopicID                    string
	TopicExistsTimeout         time.Duration
	PublishConfirmationTimeout time.Duration
}

// NewPubsubPublisherDefaults provides a config with sensible defaults.
func NewPubsubPublisherDefaults(topicID string) *PubsubPublisherConfig {
	return &PubsubPublisherConfig{
		TopicID:                    topicID,
		TopicExistsTimeout:         15 * time.Second,
		PublishConfirmationTimeout: 20 * time.Second,
	}
}

// PubsubPublisher publishes invalidation events to a Google Pub/Sub topic.
// Publishing is best-effort: a lost event is healed by the subscribers' next
// periodic refresh, so confirmation failures are logged, not returned.
type PubsubPublisher struct {
	topic               *pubsub.Topic
	logger              zerolog.Logger
	confirmationTimeout time.Duration
}

// NewPubsubPublisher creates a new PubsubPublisher. It validates the topic's
// existence before returning.
func NewPubsubPublisher(
	ctx context.Context,
	cfg *PubsubPublisherConfig,
	client *pubsub.Client,
	logger zerolog.Logger,
) (*PubsubPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if cfg.TopicExistsTimeout <= 0 {
		cfg.TopicExistsTimeout = 15 * time.Second
	}
	if cfg.PublishConfirmationTimeout <= 0 {
		cfg.PublishConfirmationTimeout = 20 * time.Second
	}

	topic := client.Topic(cfg.TopicID)
	existsCtx, cancel := context.WithTimeout(ctx, cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	logger.Info().Str("topic_id", cfg.TopicID).Msg("PubsubPublisher initialized successfully.")
	return &PubsubPublisher{
		topic:               topic,
		logger:              logger.With().Str("component", "PubsubPublisher").Str("topic_id", cfg.TopicID).Logger(),
		confirmationTimeout: cfg.PublishConfirmationTimeout,
	}, nil
}

// PublishInvalidation marshals and publishes one event. The publish result
// is confirmed asynchronously; only a marshalling failure is returned.
func (p *PubsubPublisher) PublishInvalidation(ctx context.Context, event InvalidationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"collection": event.Collection,
			"op":         event.Op,
		},
	})
	go p.confirmPublish(res, event)
	return nil
}

// confirmPublish waits for the result of a single publish operation.
func (p *PubsubPublisher) confirmPublish(res *pubsub.PublishResult, event InvalidationEvent) {
	getCtx, cancel := context.WithTimeout(context.Background(), p.confirmationTimeout)
	defer cancel()

	msgID, err := res.Get(getCtx)
	if err != nil {
		p.logger.Error().Err(err).Str("collection", event.Collection).Str("op", event.Op).Msg("Failed to confirm invalidation publish.")
		return
	}
	p.logger.Debug().Str("pubsub_msg_id", msgID).Str("collection", event.Collection).Msg("Invalidation event published.")
}

// Close flushes outstanding publishes and releases topic resources.
func (p *PubsubPublisher) Close() error {
	p.topic.Stop()
	return nil
}
