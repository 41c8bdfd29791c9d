package contracts

import "context"

// MessageQueue is the per-conversation stream decoupling the ingest path
// from persistence.
type MessageQueue interface {
	// Producer side (ingest path)
	PublishToStream(ctx context.Context, convID string, payload []byte) error
	// Consumer side (worker); handler is invoked per stream entry.
	SubscribeToStream(ctx context.Context, convID string, conGroup string, handler func(ctx context.Context, messageID string, data []byte) error) error
	// AcknowledgeMessage marks a stream entry as processed.
	AcknowledgeMessage(ctx context.Context, convID, conGroup, mesgID string) error
	// DeleteMessage removes a processed entry from the stream.
	DeleteMessage(ctx context.Context, convID, mesgID string) error
	// DeleteStream removes the whole conversation stream.
	DeleteStream(ctx context.Context, convID string) error
}
