package domain

import "context"

// Channel is the interface for a transport binding (whatsmeow socket,
// Cloud API webhook). A channel normalizes its native events into
// InboundMessage values, publishes them on the bus, and registers an
// outbound handler for replies addressed to it.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, content string) error
}
