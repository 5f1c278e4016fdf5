package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication with
// external collaborators (profile updater, notification delivery).
// Backed by Go channels in-process or NATS across processes.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings
	ChannelBufferSize int `yaml:"channel_buffer_size"`

	// NATS settings
	NATSUrl           string `yaml:"nats_url"`
	NATSToken         string `yaml:"nats_token"`
	NATSMaxReconnects int    `yaml:"nats_max_reconnects"`
	NATSReconnectWait int    `yaml:"nats_reconnect_wait"` // seconds
}

// Standard topic names for pipeline events.
const (
	TopicTransactionIngested = "sentinel.transaction.ingested"
	TopicAssessmentCompleted = "sentinel.assessment.completed"
	TopicAlertCreated        = "sentinel.alert.created"
)
