package tripevents

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	Topic     string

	// PublishTimeout bounds waiting for the server acknowledgement (default 5s).
	PublishTimeout time.Duration

	// ClientOptions are passed to the Pub/Sub client, e.g. to target an emulator.
	ClientOptions []option.ClientOption

	Logger zerolog.Logger
}

// PubSubPublisher publishes trip events to a Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for the configured topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		topic:     cfg.Topic,
		timeout:   cfg.PublishTimeout,
		logger:    cfg.Logger,
	}, nil
}

// Publish sends the event and waits for the server to accept it.
func (p *PubSubPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	data, attrs, err := encode(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing %s event: %w", e.Type, err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("topic", p.topic).
		Str("type", e.Type).
		Str("trip_id", e.TripID).
		Msg("published trip event")
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
