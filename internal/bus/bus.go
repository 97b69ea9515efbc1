// Package bus carries messages between the transport channels and the
// dispatcher inside one process.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vocabot/internal/domain"
)

// publishTimeout bounds how long a publisher waits on a full queue
// before the message is dropped.
const publishTimeout = 10 * time.Second

// InMemoryBus implements domain.MessageBus over a buffered Go channel
// for the inbound side and a handler map for the outbound side.
type InMemoryBus struct {
	inbound  chan domain.InboundMessage
	outbound map[string]func(domain.OutboundMessage)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a bus with the given inbound buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.InboundMessage, bufferSize),
		outbound: make(map[string]func(domain.OutboundMessage)),
		logger:   logger,
	}
}

// Publish queues an inbound message for the dispatcher. When the queue
// is full it waits until there is room, the context is cancelled or the
// publish timeout elapses; the message is dropped in the latter two
// cases so a stalled dispatcher cannot wedge a transport.
func (b *InMemoryBus) Publish(ctx context.Context, msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("publish on closed bus", "channel", msg.Channel)
		return
	}

	select {
	case b.inbound <- msg:
		return
	default:
	}

	b.logger.Warn("inbound queue full, waiting", "channel", msg.Channel, "sender", msg.SenderID)

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	select {
	case b.inbound <- msg:
	case <-ctx.Done():
		b.logger.Error("inbound message dropped",
			"channel", msg.Channel, "sender", msg.SenderID, "reason", ctx.Err())
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// SendOutbound hands a reply to the handler registered for its channel.
// Replies to unknown channels are logged and dropped.
func (b *InMemoryBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.RLock()
	handler, ok := b.outbound[msg.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no outbound handler for channel", "channel", msg.Channel)
		return
	}

	handler(msg)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler func(domain.OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound[channelName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
